// internal/models/profile.go
package models

// Profile is the stable identity of a player. It is created on hello and
// survives across matches; the connection it is bound to may change.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`

	// Verified is true when the hello carried a valid platform identity token.
	Verified bool `json:"-"`

	// LastOpponent is the identity of the most recent opponent, used by the
	// rematch flow. Empty until the first game starts.
	LastOpponent string `json:"-"`
}

// PublicProfile is the subset of a profile shared with an opponent.
type PublicProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Public returns the shareable view of the profile.
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		ID:       p.ID,
		Name:     p.Name,
		Username: p.Username,
		Avatar:   p.Avatar,
	}
}
