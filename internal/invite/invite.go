// internal/invite/invite.go
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xoduel/xoduel/internal/clock"
	"github.com/xoduel/xoduel/internal/protocol"
)

const codeLength = 10

// maxCreateAttempts bounds collision retries when minting a code.
const maxCreateAttempts = 5

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

// Invite is a short-lived, single-use code letting one specific host be
// matched with whoever redeems it.
type Invite struct {
	Code      string
	HostID    string
	GuestID   string
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the durable layer behind the in-memory cache. A nil Store leaves
// the manager memory-only; the protocol behavior is identical.
type Store interface {
	// Create persists a new pending invite. ErrCodeTaken signals a code
	// collision; the manager retries with a fresh code.
	Create(ctx context.Context, inv *Invite) error
	// Get returns the invite for code, or nil if unknown.
	Get(ctx context.Context, code string) (*Invite, error)
	// PendingByHost returns the host's pending, non-expired invite, or nil.
	PendingByHost(ctx context.Context, hostID string) (*Invite, error)
	// Accept transitions code from pending to accepted. Returns nil if the
	// invite was no longer pending; the first successful transition wins.
	Accept(ctx context.Context, code, guestID string) (*Invite, error)
	// Expire marks code expired.
	Expire(ctx context.Context, code string) error
}

// ErrCodeTaken is returned by Store.Create when the generated code already
// exists.
var ErrCodeTaken = fmt.Errorf("invite code already exists")

// Manager owns the invite lifecycle: at most one pending, non-expired invite
// per host; codes expire lazily at read or accept time. All calls come from
// the dispatcher goroutine, so the cache maps need no locking.
type Manager struct {
	clk     clock.Clock
	logger  *logrus.Logger
	store   Store
	ttl     time.Duration
	baseURL string

	byCode     map[string]*Invite
	codeByHost map[string]string
}

func NewManager(clk clock.Clock, logger *logrus.Logger, store Store, ttl time.Duration, baseURL string) *Manager {
	return &Manager{
		clk:        clk,
		logger:     logger,
		store:      store,
		ttl:        ttl,
		baseURL:    baseURL,
		byCode:     make(map[string]*Invite),
		codeByHost: make(map[string]string),
	}
}

// CreateOrReuse returns the host's still-valid pending invite if one exists,
// otherwise mints a new code with a fresh TTL. The empty invite with reason
// create_failed is returned when code generation keeps colliding or the
// store rejects every attempt.
func (m *Manager) CreateOrReuse(ctx context.Context, hostID string) (*Invite, string) {
	if inv := m.validPendingByHost(ctx, hostID); inv != nil {
		return inv, ""
	}

	now := m.clk.Now()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			m.logger.Warnf("invite code generation failed: %v", err)
			return nil, protocol.InviteCreateFailed
		}
		if _, exists := m.byCode[code]; exists {
			continue
		}
		inv := &Invite{
			Code:      code,
			HostID:    hostID,
			Status:    StatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
		}
		if m.store != nil {
			if err := m.store.Create(ctx, inv); err != nil {
				if err == ErrCodeTaken {
					continue
				}
				m.logger.Warnf("invite store create failed for host %s: %v", hostID, err)
				return nil, protocol.InviteCreateFailed
			}
		}
		m.cache(inv)
		return inv, ""
	}
	return nil, protocol.InviteCreateFailed
}

// Accept redeems a code for guestID. hostOnline reports whether the host has
// a live connection right now. On success the returned invite is accepted
// exactly once; every failure maps to one of the protocol's invite.invalid
// reasons.
func (m *Manager) Accept(ctx context.Context, code, guestID string, hostOnline func(uid string) bool) (*Invite, string) {
	inv := m.lookup(ctx, code)
	if inv == nil {
		return nil, protocol.InviteNotFound
	}
	if inv.Status != StatusPending {
		// Consumed invites stay cached so repeated redeems keep reporting
		// used instead of not_found.
		return nil, protocol.InviteUsed
	}
	if !inv.ExpiresAt.After(m.clk.Now()) {
		m.markExpired(ctx, inv)
		return nil, protocol.InviteExpired
	}
	if inv.HostID == guestID {
		return nil, protocol.InviteSelf
	}
	if !hostOnline(inv.HostID) {
		return nil, protocol.InviteHostOffline
	}

	if m.store != nil {
		accepted, err := m.store.Accept(ctx, code, guestID)
		if err != nil {
			m.logger.Warnf("invite store accept failed for code %s: %v", code, err)
			return nil, protocol.InviteUsed
		}
		if accepted == nil {
			// Lost the race to another accept.
			inv.Status = StatusAccepted
			m.releaseHost(inv)
			return nil, protocol.InviteUsed
		}
	}
	inv.Status = StatusAccepted
	inv.GuestID = guestID
	m.releaseHost(inv)
	return inv, ""
}

// Link builds the shareable URL embedding the code.
func (m *Manager) Link(code string) string {
	return m.baseURL + "/?ref=" + url.QueryEscape(code)
}

func (m *Manager) validPendingByHost(ctx context.Context, hostID string) *Invite {
	if code, ok := m.codeByHost[hostID]; ok {
		if inv, ok := m.byCode[code]; ok {
			if inv.Status == StatusPending && inv.ExpiresAt.After(m.clk.Now()) {
				return inv
			}
			m.dropCache(inv)
		} else {
			delete(m.codeByHost, hostID)
		}
	}

	if m.store == nil {
		return nil
	}
	inv, err := m.store.PendingByHost(ctx, hostID)
	if err != nil {
		m.logger.Warnf("invite store lookup by host %s failed: %v", hostID, err)
		return nil
	}
	if inv == nil {
		return nil
	}
	m.cache(inv)
	return inv
}

// lookup resolves a code from the cache, falling back to the store.
func (m *Manager) lookup(ctx context.Context, code string) *Invite {
	if inv, ok := m.byCode[code]; ok {
		return inv
	}
	if m.store == nil {
		return nil
	}
	inv, err := m.store.Get(ctx, code)
	if err != nil {
		m.logger.Warnf("invite store get %s failed: %v", code, err)
		return nil
	}
	if inv == nil {
		return nil
	}
	m.cache(inv)
	return inv
}

func (m *Manager) markExpired(ctx context.Context, inv *Invite) {
	inv.Status = StatusExpired
	if m.store != nil {
		if err := m.store.Expire(ctx, inv.Code); err != nil {
			m.logger.Warnf("invite store expire %s failed: %v", inv.Code, err)
		}
	}
	m.dropCache(inv)
}

func (m *Manager) cache(inv *Invite) {
	m.byCode[inv.Code] = inv
	m.codeByHost[inv.HostID] = inv.Code
}

// releaseHost frees the host's single pending slot while keeping the
// consumed invite addressable by code.
func (m *Manager) releaseHost(inv *Invite) {
	if m.codeByHost[inv.HostID] == inv.Code {
		delete(m.codeByHost, inv.HostID)
	}
}

func (m *Manager) dropCache(inv *Invite) {
	if cached, ok := m.byCode[inv.Code]; ok && cached.HostID != "" {
		delete(m.codeByHost, cached.HostID)
	}
	delete(m.byCode, inv.Code)
	delete(m.codeByHost, inv.HostID)
}

// generateCode mints a short URL-safe random code.
func generateCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := base64.RawURLEncoding.EncodeToString(buf)
	if len(code) > codeLength {
		code = code[:codeLength]
	}
	return code, nil
}
