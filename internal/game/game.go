// internal/game/game.go
package game

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xoduel/xoduel/internal/models"
	"github.com/xoduel/xoduel/internal/protocol"
)

// Marks on the board. X always moves first.
const (
	MarkX = "X"
	MarkO = "O"
)

// lines are the 8 winning triples: 3 rows, 3 columns, 2 diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Session is one active match between two identities. Cells hold MarkX,
// MarkO, or "" for empty; a cell never changes once set.
type Session struct {
	ID    uuid.UUID
	X     string
	O     string
	Board [9]string
	Turn  string
}

// markOf returns the mark assigned to uid, or "" for a non-participant.
func (s *Session) markOf(uid string) string {
	switch uid {
	case s.X:
		return MarkX
	case s.O:
		return MarkO
	}
	return ""
}

// ownerOf returns the identity holding mark.
func (s *Session) ownerOf(mark string) string {
	if mark == MarkX {
		return s.X
	}
	return s.O
}

// Sender delivers a server message to an identity's live connection.
// Delivery is best effort; an identity without a connection is skipped.
type Sender interface {
	Send(uid string, msg interface{})
}

// Outcome is the value-copied result handed to the recorder. Either
// WinnerID/LoserID are set, or DrawIDs holds both participants.
type Outcome struct {
	GameID   uuid.UUID
	Reason   string
	WinnerID string
	LoserID  string
	DrawIDs  []string
}

// OutcomeRecorder persists terminal results. Calls are fire-and-forget:
// failures are logged and never affect the in-memory transition that
// already completed.
type OutcomeRecorder interface {
	RecordMatchOutcome(ctx context.Context, outcome Outcome) error
}

// Manager owns every active session. It is driven exclusively by the
// dispatcher goroutine, so its maps need no locking; only the async
// outcome recording leaves that goroutine, and it works on value copies.
type Manager struct {
	logger   *logrus.Logger
	sender   Sender
	recorder OutcomeRecorder

	// ResolveProfile builds the public profile sent as the opponent payload,
	// backfilling missing fields from durable storage when available.
	ResolveProfile func(ctx context.Context, uid string) models.PublicProfile

	// SetLastOpponent updates the rematch pointer on an identity's profile.
	SetLastOpponent func(uid, opponent string)

	sessions map[uuid.UUID]*Session
	byPlayer map[string]uuid.UUID
}

func NewManager(logger *logrus.Logger, sender Sender, recorder OutcomeRecorder) *Manager {
	return &Manager{
		logger:   logger,
		sender:   sender,
		recorder: recorder,
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[string]uuid.UUID),
	}
}

// Active returns the number of in-progress sessions.
func (m *Manager) Active() int { return len(m.sessions) }

// SessionFor returns uid's active session, if any.
func (m *Manager) SessionFor(uid string) (*Session, bool) {
	id, ok := m.byPlayer[uid]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// Start creates a session between two distinct identities: marks are
// coin-flipped, the board is empty, and X moves first. Both rematch
// pointers are updated and both sides receive game.start with their mark
// and the opponent's public profile. An identity already in a session has
// that session resolved as a disconnect first, keeping each identity in at
// most one active session.
func (m *Manager) Start(ctx context.Context, uidA, uidB string) *Session {
	if uidA == "" || uidB == "" || uidA == uidB {
		return nil
	}

	m.resolveAbandoned(uidA)
	m.resolveAbandoned(uidB)

	s := &Session{
		ID:   uuid.New(),
		X:    uidA,
		O:    uidB,
		Turn: MarkX,
	}
	if rand.IntN(2) == 0 {
		s.X, s.O = uidB, uidA
	}
	m.sessions[s.ID] = s
	m.byPlayer[s.X] = s.ID
	m.byPlayer[s.O] = s.ID

	if m.SetLastOpponent != nil {
		m.SetLastOpponent(uidA, uidB)
		m.SetLastOpponent(uidB, uidA)
	}

	var oppForX, oppForO models.PublicProfile
	if m.ResolveProfile != nil {
		oppForX = m.ResolveProfile(ctx, s.O)
		oppForO = m.ResolveProfile(ctx, s.X)
	}

	gameID := s.ID.String()
	m.sender.Send(s.X, protocol.NewGameStart(gameID, MarkX, MarkX, oppForX))
	m.sender.Send(s.O, protocol.NewGameStart(gameID, MarkO, MarkX, oppForO))

	m.logger.WithFields(logrus.Fields{
		"game": gameID,
		"x":    s.X,
		"o":    s.O,
	}).Info("Game started")
	return s
}

// Move applies uid's move at cell. Every violation is rejected silently
// with no state change: unknown game, cell out of range, not the mover's
// turn, or an occupied cell. A legal move sets the cell, flips the turn,
// broadcasts the new state, and resolves any win or draw.
func (m *Manager) Move(gameID string, uid string, cell int) {
	id, err := uuid.Parse(gameID)
	if err != nil {
		return
	}
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if cell < 0 || cell > 8 {
		return
	}
	mark := s.markOf(uid)
	if mark == "" || s.Turn != mark {
		return
	}
	if s.Board[cell] != "" {
		return
	}

	s.Board[cell] = mark
	if mark == MarkX {
		s.Turn = MarkO
	} else {
		s.Turn = MarkX
	}

	win := checkWin(s.Board)
	state := protocol.NewGameState(s.Board, s.Turn, win)
	m.sender.Send(s.X, state)
	m.sender.Send(s.O, state)

	if win == nil {
		return
	}
	if win.By == "" {
		m.end(s, protocol.EndDraw, "")
	} else {
		m.end(s, protocol.EndWin, win.By)
	}
}

// Resign ends the session immediately, awarding the win to the other
// participant. A resigner who is not a participant produces no winner.
func (m *Manager) Resign(gameID string, uid string) {
	id, err := uuid.Parse(gameID)
	if err != nil {
		return
	}
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	var winBy string
	switch uid {
	case s.X:
		winBy = MarkO
	case s.O:
		winBy = MarkX
	}
	m.end(s, protocol.EndResign, winBy)
}

// HandleDisconnect resolves uid's active session after its connection went
// away: the remaining participant wins, unless stillConnected reports them
// gone too, in which case the session ends with no winner.
func (m *Manager) HandleDisconnect(uid string, stillConnected func(uid string) bool) {
	s, ok := m.SessionFor(uid)
	if !ok {
		return
	}
	other := s.O
	winBy := MarkO
	if uid == s.O {
		other = s.X
		winBy = MarkX
	}
	if !stillConnected(other) {
		winBy = ""
	}
	m.end(s, protocol.EndDisconnect, winBy)
}

// resolveAbandoned ends uid's current session as a disconnect before a new
// one starts, awarding the opponent the win.
func (m *Manager) resolveAbandoned(uid string) {
	s, ok := m.SessionFor(uid)
	if !ok {
		return
	}
	winBy := MarkO
	if uid == s.O {
		winBy = MarkX
	}
	m.end(s, protocol.EndDisconnect, winBy)
}

// end transitions the session to its terminal state: both participants are
// notified, the outcome is recorded asynchronously, and the session leaves
// the active set. Terminal states are never re-entered because the session
// is gone from the maps by the time end returns.
func (m *Manager) end(s *Session, reason, winBy string) {
	delete(m.sessions, s.ID)
	if m.byPlayer[s.X] == s.ID {
		delete(m.byPlayer, s.X)
	}
	if m.byPlayer[s.O] == s.ID {
		delete(m.byPlayer, s.O)
	}

	msg := protocol.NewGameEnd(reason, winBy)
	m.sender.Send(s.X, msg)
	m.sender.Send(s.O, msg)

	m.logger.WithFields(logrus.Fields{
		"game":   s.ID.String(),
		"reason": reason,
		"by":     winBy,
	}).Info("Game ended")

	if m.recorder == nil {
		return
	}
	outcome := Outcome{GameID: s.ID, Reason: reason}
	switch {
	case winBy != "":
		outcome.WinnerID = s.ownerOf(winBy)
		loserMark := MarkX
		if winBy == MarkX {
			loserMark = MarkO
		}
		outcome.LoserID = s.ownerOf(loserMark)
	case reason == protocol.EndDraw:
		outcome.DrawIDs = []string{s.X, s.O}
	default:
		// No winner and not a draw (both participants gone): nothing to
		// record.
		return
	}

	recorder, logger, gameID := m.recorder, m.logger, s.ID.String()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.RecordMatchOutcome(ctx, outcome); err != nil {
			logger.Warnf("recordMatchOutcome failed for game %s: %v", gameID, err)
		}
	}()
}

// checkWin scans the 8 fixed lines. It returns the winning mark and line,
// an empty-By result for a full board with no winner (draw), or nil while
// the game is still open.
func checkWin(board [9]string) *protocol.WinInfo {
	for _, line := range lines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != "" && a == b && a == c {
			return &protocol.WinInfo{By: a, Line: line[:]}
		}
	}
	for _, cell := range board {
		if cell == "" {
			return nil
		}
	}
	return &protocol.WinInfo{}
}
