// internal/hub/presence.go
package hub

import "github.com/xoduel/xoduel/internal/protocol"

// presenceStats derives the aggregate online counts from a registry
// snapshot: verified profiles, and guests (unverified profiles plus
// connections that never completed hello). Purely read-only.
func presenceStats(reg *Registry, totalConns int) protocol.OnlineStats {
	verified, unverified := reg.Counts()
	anonymous := totalConns - (verified + unverified)
	if anonymous < 0 {
		anonymous = 0
	}
	return protocol.NewOnlineStats(totalConns, verified, unverified+anonymous)
}
