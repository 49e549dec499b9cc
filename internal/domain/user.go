package domain

import "time"

// UserProfile represents a bot user, keyed by Telegram id.
type UserProfile struct {
	TelegramID  string            `firestore:"telegram_id" json:"telegram_id"`
	Manifesto   string            `firestore:"manifesto" json:"manifesto"`
	QuizAnswers map[string]string `firestore:"quiz_answers" json:"quiz_answers"`
	// Linked is set when a WHOOP token pair has been stored for the user and
	// cleared on unlink or terminal auth failure. Scheduled broadcasts only
	// target linked profiles.
	Linked    bool      `firestore:"linked" json:"linked"`
	CreatedAt time.Time `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updated_at"`
}

// OAuthState ties a one-time authorization state value to the Telegram user
// who requested the link. Consumed exactly once by the OAuth callback.
type OAuthState struct {
	State      string    `firestore:"state" json:"state"`
	TelegramID string    `firestore:"telegram_id" json:"telegram_id"`
	CreatedAt  time.Time `firestore:"created_at" json:"created_at"`
}

// UserContext is the enrichment data handed to the content generator.
type UserContext struct {
	Profile       UserProfile
	RecentRecords []HealthRecord
}
