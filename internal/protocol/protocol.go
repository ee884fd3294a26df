// internal/protocol/protocol.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xoduel/xoduel/internal/models"
)

// Client-to-server frame types.
const (
	TypeHello          = "hello"
	TypeQueueJoin      = "queue.join"
	TypeQueueLeave     = "queue.leave"
	TypeInviteCreate   = "invite.create"
	TypeInviteAccept   = "invite.accept"
	TypeGameMove       = "game.move"
	TypeGameResign     = "game.resign"
	TypeRematchOffer   = "rematch.offer"
	TypeRematchAccept  = "rematch.accept"
	TypeRematchDecline = "rematch.decline"
)

// Invite rejection reasons surfaced in invite.invalid.
const (
	InviteNotFound     = "not_found"
	InviteUsed         = "used"
	InviteExpired      = "expired"
	InviteSelf         = "self"
	InviteHostOffline  = "host_offline"
	InviteCreateFailed = "create_failed"
)

// Game end reasons surfaced in game.end.
const (
	EndWin        = "win"
	EndDraw       = "draw"
	EndResign     = "resign"
	EndDisconnect = "disconnect"
)

// ErrMalformed marks a frame that failed structural validation. Malformed
// frames are dropped without a response.
var ErrMalformed = errors.New("malformed frame")

// ClientFrame is the decoded envelope of an inbound message. All payload
// fields are optional at the JSON level; Decode enforces the ones the frame
// type requires.
type ClientFrame struct {
	T string `json:"t"`

	// hello
	UID       string `json:"uid,omitempty"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	AuthToken string `json:"authToken,omitempty"`

	// invite.accept
	Code string `json:"code,omitempty"`

	// game.move / game.resign
	GameID string `json:"gameId,omitempty"`
	Cell   *int   `json:"i,omitempty"`

	// rematch.accept / rematch.decline
	To string `json:"to,omitempty"`
}

// Decode parses and structurally validates an inbound frame. It returns
// ErrMalformed for anything a handler must not see: unparsable JSON, a
// missing type tag, or a payload that fails the per-type field checks.
func Decode(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.T == "" {
		return ClientFrame{}, fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	switch f.T {
	case TypeHello:
		if f.UID == "" {
			return ClientFrame{}, fmt.Errorf("%w: hello without uid", ErrMalformed)
		}
	case TypeInviteAccept:
		if f.Code == "" {
			return ClientFrame{}, fmt.Errorf("%w: invite.accept without code", ErrMalformed)
		}
	case TypeGameMove:
		if f.GameID == "" || f.Cell == nil || *f.Cell < 0 || *f.Cell > 8 {
			return ClientFrame{}, fmt.Errorf("%w: invalid game.move", ErrMalformed)
		}
	case TypeGameResign:
		if f.GameID == "" {
			return ClientFrame{}, fmt.Errorf("%w: game.resign without gameId", ErrMalformed)
		}
	}
	return f, nil
}

// Server-to-client messages. Each carries its own type tag so it can be
// marshaled directly onto the wire.

type OnlineStats struct {
	T        string `json:"t"`
	Total    int    `json:"total"`
	Verified int    `json:"verified"`
	Guest    int    `json:"guest"`
}

func NewOnlineStats(total, verified, guest int) OnlineStats {
	return OnlineStats{T: "online.stats", Total: total, Verified: verified, Guest: guest}
}

type QueueJoined struct {
	T string `json:"t"`
}

func NewQueueJoined() QueueJoined { return QueueJoined{T: "queue.joined"} }

type QueueWaiting struct {
	T        string `json:"t"`
	Position int    `json:"position"`
}

func NewQueueWaiting(position int) QueueWaiting {
	return QueueWaiting{T: "queue.waiting", Position: position}
}

type QueueLeft struct {
	T string `json:"t"`
}

func NewQueueLeft() QueueLeft { return QueueLeft{T: "queue.left"} }

type QueueThrottled struct {
	T       string `json:"t"`
	RetryIn int64  `json:"retryIn"`
}

func NewQueueThrottled(retryIn time.Duration) QueueThrottled {
	return QueueThrottled{T: "queue.throttled", RetryIn: retryIn.Milliseconds()}
}

type InviteCreated struct {
	T         string    `json:"t"`
	Code      string    `json:"code"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewInviteCreated(code, link string, expiresAt time.Time) InviteCreated {
	return InviteCreated{T: "invite.created", Code: code, Link: link, ExpiresAt: expiresAt}
}

type InviteWaiting struct {
	T    string `json:"t"`
	Code string `json:"code"`
}

func NewInviteWaiting(code string) InviteWaiting {
	return InviteWaiting{T: "invite.waiting", Code: code}
}

type InviteConnected struct {
	T     string `json:"t"`
	Code  string `json:"code"`
	Host  string `json:"host,omitempty"`
	Guest string `json:"guest,omitempty"`
}

func NewInviteConnected(code, host, guest string) InviteConnected {
	return InviteConnected{T: "invite.connected", Code: code, Host: host, Guest: guest}
}

type InviteInvalid struct {
	T      string `json:"t"`
	Reason string `json:"reason"`
}

func NewInviteInvalid(reason string) InviteInvalid {
	return InviteInvalid{T: "invite.invalid", Reason: reason}
}

type GameStart struct {
	T      string               `json:"t"`
	GameID string               `json:"gameId"`
	You    string               `json:"you"`
	Turn   string               `json:"turn"`
	Opp    models.PublicProfile `json:"opp"`
}

func NewGameStart(gameID, you, turn string, opp models.PublicProfile) GameStart {
	return GameStart{T: "game.start", GameID: gameID, You: you, Turn: turn, Opp: opp}
}

// WinInfo describes a decided board: the winning mark and the three cell
// indices of the completed line. A filled board with no line is a draw,
// reported with an empty By and no line.
type WinInfo struct {
	By   string `json:"by"`
	Line []int  `json:"line,omitempty"`
}

type GameState struct {
	T     string    `json:"t"`
	Board [9]string `json:"board"`
	Turn  string    `json:"turn"`
	Win   *WinInfo  `json:"win"`
}

func NewGameState(board [9]string, turn string, win *WinInfo) GameState {
	return GameState{T: "game.state", Board: board, Turn: turn, Win: win}
}

type GameEnd struct {
	T      string `json:"t"`
	Reason string `json:"reason"`
	By     string `json:"by,omitempty"`
}

func NewGameEnd(reason, by string) GameEnd {
	return GameEnd{T: "game.end", Reason: reason, By: by}
}

type RematchOffer struct {
	T    string               `json:"t"`
	From models.PublicProfile `json:"from"`
}

func NewRematchOffer(from models.PublicProfile) RematchOffer {
	return RematchOffer{T: "rematch.offer", From: from}
}

type RematchDeclined struct {
	T  string `json:"t"`
	By string `json:"by"`
}

func NewRematchDeclined(by string) RematchDeclined {
	return RematchDeclined{T: "rematch.declined", By: by}
}
