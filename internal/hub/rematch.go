// internal/hub/rematch.go
package hub

import (
	"context"

	"github.com/xoduel/xoduel/internal/protocol"
)

// Rematch negotiation rides on Profile.LastOpponent rather than a separate
// store; the pointer is refreshed every time a session starts.

// handleRematchOffer forwards an offer to the most recent opponent's live
// connection. With no prior opponent the request degrades to a regular
// queue join; with the opponent offline the offer is silently dropped.
func (h *Hub) handleRematchOffer(uid string) {
	profile, ok := h.registry.ProfileByUID(uid)
	if !ok {
		return
	}
	if profile.LastOpponent == "" {
		h.handleQueueJoin(uid)
		return
	}
	if oppConn, ok := h.registry.ConnFor(profile.LastOpponent); ok {
		oppConn.Send(protocol.NewRematchOffer(profile.Public()))
	}
}

// handleRematchAccept starts a fresh session against the most recent
// opponent, bypassing both queue and invites.
func (h *Hub) handleRematchAccept(uid string) {
	profile, ok := h.registry.ProfileByUID(uid)
	if !ok {
		return
	}
	if profile.LastOpponent == "" || profile.LastOpponent == uid {
		return
	}
	h.games.Start(context.Background(), uid, profile.LastOpponent)
}

// handleRematchDecline tells both sides the rematch is off. LastOpponent is
// left untouched so a later offer can still reach the same pair.
func (h *Hub) handleRematchDecline(c *Conn, uid string) {
	profile, ok := h.registry.ProfileByUID(uid)
	if !ok || profile.LastOpponent == "" {
		return
	}
	declined := protocol.NewRematchDeclined(uid)
	if oppConn, ok := h.registry.ConnFor(profile.LastOpponent); ok {
		oppConn.Send(declined)
	}
	c.Send(declined)
}
