package repository

import (
	"context"
	"time"

	"github.com/akozyrev/fitcoach-service/internal/domain"
)

// UserRepository defines methods for user profile operations
type UserRepository interface {
	Get(ctx context.Context, telegramID string) (*domain.UserProfile, error)
	Ensure(ctx context.Context, telegramID string) (*domain.UserProfile, error)
	SetManifesto(ctx context.Context, telegramID, manifesto string) error
	SetQuizAnswer(ctx context.Context, telegramID, questionID, answer string) error
	SetLinked(ctx context.Context, telegramID string, linked bool) error
	ListLinked(ctx context.Context) ([]*domain.UserProfile, error)
}

// TokenRepository defines methods for WHOOP token storage
type TokenRepository interface {
	Get(ctx context.Context, userID string) (*domain.TokenRecord, error)
	// Save persists a record unconditionally (initial link).
	Save(ctx context.Context, record *domain.TokenRecord) error
	// SaveVersioned persists a record only if the stored version still equals
	// fromVersion, protecting the rotated refresh token from lost updates.
	SaveVersioned(ctx context.Context, record *domain.TokenRecord, fromVersion int64) error
	Delete(ctx context.Context, userID string) error
}

// CursorRepository defines methods for sync cursor operations
type CursorRepository interface {
	Get(ctx context.Context, userID string) (*domain.SyncCursor, error)
	// Advance moves the cursor forward; it never moves it back.
	Advance(ctx context.Context, userID string, syncedAt time.Time, lastRecordID string) error
}

// HealthRecordRepository defines methods for the append-only record store
type HealthRecordRepository interface {
	// Upsert writes a record keyed by its natural dedup key; replaying the
	// same record is a no-op overwrite.
	Upsert(ctx context.Context, record *domain.HealthRecord) error
	Recent(ctx context.Context, userID string, limit int) ([]*domain.HealthRecord, error)
	ForDay(ctx context.Context, userID string, day time.Time) ([]*domain.HealthRecord, error)
}

// DispatchRepository defines methods for the dispatch ledger
type DispatchRepository interface {
	Get(ctx context.Context, triggerID string) (*domain.DispatchRecord, error)
	Record(ctx context.Context, record *domain.DispatchRecord) error
}

// OAuthStateRepository defines methods for one-time OAuth state values
type OAuthStateRepository interface {
	Create(ctx context.Context, state, telegramID string) error
	// Consume resolves a state to its Telegram id and deletes it atomically.
	Consume(ctx context.Context, state string) (string, error)
}
