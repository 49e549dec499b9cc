package repository

import (
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// Firestore collection names.
const (
	usersCollection       = "users"
	tokensCollection      = "whoop_tokens"
	cursorsCollection     = "sync_cursors"
	healthCollection      = "health_records"
	dispatchesCollection  = "dispatches"
	oauthStatesCollection = "oauth_states"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User       UserRepository
	Token      TokenRepository
	Cursor     CursorRepository
	Health     HealthRecordRepository
	Dispatch   DispatchRepository
	OAuthState OAuthStateRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Firestore) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Token:      NewTokenRepository(db),
		Cursor:     NewCursorRepository(db),
		Health:     NewHealthRecordRepository(db),
		Dispatch:   NewDispatchRepository(db),
		OAuthState: NewOAuthStateRepository(db),
	}
}
