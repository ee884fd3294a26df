// internal/hub/hub.go
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xoduel/xoduel/internal/auth"
	"github.com/xoduel/xoduel/internal/clock"
	"github.com/xoduel/xoduel/internal/game"
	"github.com/xoduel/xoduel/internal/invite"
	"github.com/xoduel/xoduel/internal/models"
	"github.com/xoduel/xoduel/internal/protocol"
	"github.com/xoduel/xoduel/internal/queue"
)

// storeTimeout bounds the durable-store calls issued from handlers (invite
// persistence, profile backfill).
const storeTimeout = 3 * time.Second

// ProfileLookup backfills a public profile from durable storage when the
// in-memory one is incomplete. The second return is false for an unknown
// identity.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, uid string) (models.PublicProfile, bool, error)
}

// IdentityStore persists identity attributes seen on hello. Best effort.
type IdentityStore interface {
	UpsertUser(ctx context.Context, profile models.Profile) error
}

// Options wires the hub's collaborators. Recorder, Profiles, Identities,
// and InviteStore may be nil; the hub then runs memory-only.
type Options struct {
	Logger   *logrus.Logger
	Clock    clock.Clock
	Verifier auth.Verifier

	Recorder    game.OutcomeRecorder
	Profiles    ProfileLookup
	Identities  IdentityStore
	InviteStore invite.Store

	BaseURL              string
	QueueJoinThrottle    time.Duration
	InviteTTL            time.Duration
	OnlineStatsInterval  time.Duration
	MaxMessagesPerSecond int
}

// Hub is the dispatcher: a single goroutine owns every piece of mutable
// state (registry, queue, invites, sessions) and processes one inbound
// event to completion before the next, so no shared-state locking is
// needed. Handlers must not block; the only calls that leave the loop are
// bounded store reads and the fire-and-forget persistence goroutines.
type Hub struct {
	logger     *logrus.Logger
	clk        clock.Clock
	verifier   auth.Verifier
	profiles   ProfileLookup
	identities IdentityStore

	registry *Registry
	queue    *queue.Queue
	invites  *invite.Manager
	games    *game.Manager

	statsInterval time.Duration
	messageCap    int

	events chan event
	conns  map[*Conn]struct{}
}

type event interface{}

type connOpened struct{ c *Conn }
type connClosed struct{ c *Conn }
type inboundFrame struct {
	c    *Conn
	data []byte
}

func New(opts Options) *Hub {
	h := &Hub{
		logger:        opts.Logger,
		clk:           opts.Clock,
		verifier:      opts.Verifier,
		profiles:      opts.Profiles,
		identities:    opts.Identities,
		registry:      NewRegistry(),
		statsInterval: opts.OnlineStatsInterval,
		messageCap:    opts.MaxMessagesPerSecond,
		events:        make(chan event, 256),
		conns:         make(map[*Conn]struct{}),
	}
	h.queue = queue.New(opts.Clock, opts.QueueJoinThrottle)
	h.invites = invite.NewManager(opts.Clock, opts.Logger, opts.InviteStore, opts.InviteTTL, opts.BaseURL)
	h.games = game.NewManager(opts.Logger, h, opts.Recorder)
	h.games.ResolveProfile = h.resolveProfile
	h.games.SetLastOpponent = h.setLastOpponent
	return h
}

// Run drives the dispatch loop until ctx is cancelled. It also owns the
// presence timer: every tick the online stats snapshot is broadcast to all
// live connections.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.dispatch(ev)
		case <-ticker.C:
			h.broadcastStats()
		}
	}
}

// HandleConnection feeds a connection's inbound frames into the dispatch
// loop. It blocks until the connection dies; the caller runs it on the
// connection's own goroutine. Exceeding the per-second message cap closes
// the connection outright.
func (h *Hub) HandleConnection(ctx context.Context, c *Conn) {
	h.events <- connOpened{c: c}
	for {
		data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if !c.AllowMessage(h.clk.Now(), h.messageCap) {
			h.logger.Warnf("message cap exceeded for %s, closing", c.Remote())
			c.CloseRateLimited()
			continue
		}
		h.events <- inboundFrame{c: c, data: data}
	}
	h.events <- connClosed{c: c}
}

// Send delivers msg to uid's live connection, if any. Implements
// game.Sender.
func (h *Hub) Send(uid string, msg interface{}) {
	if c, ok := h.registry.ConnFor(uid); ok {
		c.Send(msg)
	}
}

func (h *Hub) dispatch(ev event) {
	switch e := ev.(type) {
	case connOpened:
		h.conns[e.c] = struct{}{}
		h.broadcastStats()
	case connClosed:
		h.handleClose(e.c)
	case inboundFrame:
		h.handleFrame(e.c, e.data)
	}
}

func (h *Hub) handleFrame(c *Conn, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		// Malformed input is dropped without a response.
		h.logger.Debugf("dropping malformed frame from %s: %v", c.Remote(), err)
		return
	}

	if frame.T == protocol.TypeHello {
		h.handleHello(c, frame)
		return
	}

	profile, ok := h.registry.ProfileFor(c)
	if !ok {
		// Everything but hello requires a bound identity.
		return
	}
	uid := profile.ID

	switch frame.T {
	case protocol.TypeQueueJoin:
		h.handleQueueJoin(uid)
	case protocol.TypeQueueLeave:
		h.handleQueueLeave(uid)
	case protocol.TypeInviteCreate:
		h.handleInviteCreate(c, uid)
	case protocol.TypeInviteAccept:
		h.handleInviteAccept(c, uid, frame.Code)
	case protocol.TypeGameMove:
		h.games.Move(frame.GameID, uid, *frame.Cell)
	case protocol.TypeGameResign:
		h.games.Resign(frame.GameID, uid)
	case protocol.TypeRematchOffer:
		h.handleRematchOffer(uid)
	case protocol.TypeRematchAccept:
		h.handleRematchAccept(uid)
	case protocol.TypeRematchDecline:
		h.handleRematchDecline(c, uid)
	default:
		h.logger.Debugf("unknown frame type %q from %s", frame.T, c.Remote())
	}
}

// handleHello binds the claimed identity to this connection. A valid
// platform token whose subject matches the claimed uid marks the profile
// verified; anything else degrades to an unverified profile rather than an
// error. A previous connection for the same identity is closed by the bind.
func (h *Hub) handleHello(c *Conn, frame protocol.ClientFrame) {
	name := auth.SanitizeName(frame.Name)
	if name == "" {
		name = "Player"
	}
	profile := &models.Profile{
		ID:       frame.UID,
		Name:     name,
		Username: auth.SanitizeUsername(frame.Username),
		Avatar:   auth.SanitizeAvatar(frame.Avatar),
	}
	if frame.AuthToken != "" && h.verifier != nil {
		sub, err := h.verifier.Verify(frame.AuthToken)
		switch {
		case err != nil:
			h.logger.Debugf("auth token rejected for uid %s: %v", frame.UID, err)
		case sub != frame.UID:
			h.logger.Warnf("auth token subject %s does not match claimed uid %s", sub, frame.UID)
		default:
			profile.Verified = true
		}
	}

	h.registry.Bind(profile, c)
	h.logger.WithFields(logrus.Fields{
		"uid":      profile.ID,
		"name":     profile.Name,
		"verified": profile.Verified,
	}).Info("hello")
	h.broadcastStats()

	if h.identities != nil {
		identities, logger, snapshot := h.identities, h.logger, *profile
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := identities.UpsertUser(ctx, snapshot); err != nil {
				logger.Warnf("user upsert failed for %s: %v", snapshot.ID, err)
			}
		}()
	}
}

func (h *Hub) handleQueueJoin(uid string) {
	res := h.queue.Join(uid)
	if res.Throttled {
		h.Send(uid, protocol.NewQueueThrottled(res.RetryIn))
		h.sendQueuePosition(uid)
		return
	}
	if res.Added {
		h.Send(uid, protocol.NewQueueJoined())
	}
	h.sendQueuePosition(uid)
	h.matchmake()
}

func (h *Hub) handleQueueLeave(uid string) {
	if h.queue.Leave(uid) {
		h.Send(uid, protocol.NewQueueLeft())
	}
	h.matchmake()
}

func (h *Hub) sendQueuePosition(uid string) {
	if pos := h.queue.Position(uid); pos > 0 {
		h.Send(uid, protocol.NewQueueWaiting(pos))
	}
}

// matchmake runs synchronously after every queue mutation so a matched pair
// never waits for an external tick.
func (h *Hub) matchmake() {
	pairs, waiter := h.queue.Matchmake()
	for _, p := range pairs {
		h.Send(p.A, protocol.NewQueueLeft())
		h.Send(p.B, protocol.NewQueueLeft())
		h.games.Start(context.Background(), p.A, p.B)
	}
	if waiter != "" {
		h.Send(waiter, protocol.NewQueueWaiting(1))
	}
}

func (h *Hub) handleInviteCreate(c *Conn, uid string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	inv, reason := h.invites.CreateOrReuse(ctx, uid)
	if reason != "" {
		c.Send(protocol.NewInviteInvalid(reason))
		return
	}
	c.Send(protocol.NewInviteCreated(inv.Code, h.invites.Link(inv.Code), inv.ExpiresAt))
	c.Send(protocol.NewInviteWaiting(inv.Code))
}

func (h *Hub) handleInviteAccept(c *Conn, uid, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	inv, reason := h.invites.Accept(ctx, code, uid, h.registry.Online)
	if reason != "" {
		c.Send(protocol.NewInviteInvalid(reason))
		return
	}

	// The pairing bypasses the queue entirely; both sides leave it first.
	if h.queue.Leave(inv.HostID) {
		h.Send(inv.HostID, protocol.NewQueueLeft())
	}
	if h.queue.Leave(uid) {
		c.Send(protocol.NewQueueLeft())
	}

	h.Send(inv.HostID, protocol.NewInviteConnected(code, "", uid))
	c.Send(protocol.NewInviteConnected(code, inv.HostID, ""))

	h.games.Start(ctx, inv.HostID, uid)
}

// handleClose runs the full disconnect cleanup. Queue, throttle, and
// session state are only touched when this connection was still the
// canonical binding; a connection replaced by a newer bind must not tear
// down the identity's live state.
func (h *Hub) handleClose(c *Conn) {
	delete(h.conns, c)
	c.Close()

	profile, canonical := h.registry.Unbind(c)
	if profile != nil && canonical {
		h.queue.Leave(profile.ID)
		h.queue.ForgetThrottle(profile.ID)
		h.games.HandleDisconnect(profile.ID, h.registry.Online)
	}
	h.broadcastStats()
}

func (h *Hub) broadcastStats() {
	stats := presenceStats(h.registry, len(h.conns))
	for c := range h.conns {
		c.Send(stats)
	}
}

// setLastOpponent updates the rematch pointer on the live profile.
func (h *Hub) setLastOpponent(uid, opponent string) {
	if p, ok := h.registry.ProfileByUID(uid); ok {
		p.LastOpponent = opponent
	}
}

// resolveProfile builds the opponent payload for uid, backfilling missing
// fields from durable storage. The live profile is updated in place so the
// backfill sticks.
func (h *Hub) resolveProfile(ctx context.Context, uid string) models.PublicProfile {
	pub := models.PublicProfile{ID: uid}
	live, hasLive := h.registry.ProfileByUID(uid)
	if hasLive {
		pub = live.Public()
	}

	if h.profiles != nil && (pub.Name == "" || pub.Username == "" || pub.Avatar == "") {
		lookupCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		stored, found, err := h.profiles.LookupProfile(lookupCtx, uid)
		cancel()
		switch {
		case err != nil:
			h.logger.Warnf("profile lookup failed for %s: %v", uid, err)
		case found:
			if pub.Name == "" {
				pub.Name = stored.Name
			}
			if pub.Username == "" {
				pub.Username = stored.Username
			}
			if pub.Avatar == "" {
				pub.Avatar = stored.Avatar
			}
		}
	}

	if pub.Name == "" {
		if pub.Username != "" {
			pub.Name = "@" + pub.Username
		} else {
			pub.Name = "Player"
		}
	}

	if hasLive {
		live.Name = pub.Name
		live.Username = pub.Username
		if pub.Avatar != "" {
			live.Avatar = pub.Avatar
		}
	}
	return pub
}
