package domain

import "time"

// TokenRecord holds a user's WHOOP OAuth token pair. It is owned by the token
// vault: only the OAuth callback exchange and the refresh flow write it, and it
// is deleted only when the user unlinks the account.
type TokenRecord struct {
	UserID       string    `firestore:"user_id" json:"user_id"`
	AccessToken  string    `firestore:"access_token" json:"-"`
	RefreshToken string    `firestore:"refresh_token" json:"-"`
	ExpiresAt    time.Time `firestore:"expires_at" json:"expires_at"`
	Scope        string    `firestore:"scope" json:"scope"`
	// Version increments on every refresh. Writes carry the version they read,
	// so a concurrent refresh that already rotated the pair is not clobbered.
	Version   int64     `firestore:"version" json:"version"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}

// ValidFor reports whether the access token is still usable for at least
// margin beyond now.
func (t TokenRecord) ValidFor(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Add(margin).Before(t.ExpiresAt)
}
