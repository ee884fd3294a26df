// internal/hub/registry.go
package hub

import "github.com/xoduel/xoduel/internal/models"

// Registry binds stable identities to live connections, both ways. At most
// one connection is bound per identity; binding a replacement closes the
// previous one. The registry does not cascade: queue, invite, and session
// cleanup is the dispatcher's job on unbind.
type Registry struct {
	profilesByConn map[*Conn]*models.Profile
	connByUID      map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		connByUID:      make(map[string]*Conn),
		profilesByConn: make(map[*Conn]*models.Profile),
	}
}

// Bind records the identity↔connection pair. If the identity was bound to a
// different connection, that connection is closed first so one identity
// never holds two live sessions. Rebinding the same pair is a no-op update.
func (r *Registry) Bind(profile *models.Profile, c *Conn) {
	if prev, ok := r.connByUID[profile.ID]; ok && prev != c {
		delete(r.profilesByConn, prev)
		prev.Close()
	}
	r.connByUID[profile.ID] = c
	r.profilesByConn[c] = profile
}

// Unbind removes the connection's mapping. It returns the profile that was
// attached and whether this connection was still the canonical binding for
// that identity (false when a newer connection already replaced it).
func (r *Registry) Unbind(c *Conn) (*models.Profile, bool) {
	profile, ok := r.profilesByConn[c]
	if !ok {
		return nil, false
	}
	delete(r.profilesByConn, c)
	if r.connByUID[profile.ID] == c {
		delete(r.connByUID, profile.ID)
		return profile, true
	}
	return profile, false
}

// ConnFor resolves an identity to its live connection.
func (r *Registry) ConnFor(uid string) (*Conn, bool) {
	c, ok := r.connByUID[uid]
	return c, ok
}

// ProfileFor resolves a connection to the identity bound to it.
func (r *Registry) ProfileFor(c *Conn) (*models.Profile, bool) {
	p, ok := r.profilesByConn[c]
	return p, ok
}

// ProfileByUID resolves an identity to its profile via the live binding.
func (r *Registry) ProfileByUID(uid string) (*models.Profile, bool) {
	c, ok := r.connByUID[uid]
	if !ok {
		return nil, false
	}
	return r.ProfileFor(c)
}

// Online reports whether uid has a live connection.
func (r *Registry) Online(uid string) bool {
	_, ok := r.connByUID[uid]
	return ok
}

// Counts returns how many bound connections carry verified vs. unverified
// profiles.
func (r *Registry) Counts() (verified, unverified int) {
	for _, p := range r.profilesByConn {
		if p.Verified {
			verified++
		} else {
			unverified++
		}
	}
	return verified, unverified
}
