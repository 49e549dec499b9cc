package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// tokenRepository implements TokenRepository on Firestore
type tokenRepository struct {
	db *database.Firestore
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *database.Firestore) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) doc(userID string) *firestore.DocumentRef {
	return r.db.Client.Collection(tokensCollection).Doc(userID)
}

// Get retrieves the stored token pair for a user
func (r *tokenRepository) Get(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("token for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token for user %s: %w", userID, err)
	}

	record := &domain.TokenRecord{}
	if err := snap.DataTo(record); err != nil {
		return nil, fmt.Errorf("failed to decode token for user %s: %w", userID, err)
	}

	return record, nil
}

// Save persists a token record unconditionally
func (r *tokenRepository) Save(ctx context.Context, record *domain.TokenRecord) error {
	if _, err := r.doc(record.UserID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to save token for user %s: %w", record.UserID, err)
	}
	return nil
}

// SaveVersioned persists a token record only if the stored version still
// equals fromVersion. A mismatch means another refresh already rotated the
// pair and this write must not clobber it.
func (r *tokenRepository) SaveVersioned(ctx context.Context, record *domain.TokenRecord, fromVersion int64) error {
	doc := r.doc(record.UserID)

	err := r.db.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		current := &domain.TokenRecord{}
		if err := snap.DataTo(current); err != nil {
			return err
		}
		if current.Version != fromVersion {
			return ErrVersionConflict
		}

		return tx.Set(doc, record)
	})
	if err != nil {
		if err == ErrNotFound || err == ErrVersionConflict {
			return err
		}
		return fmt.Errorf("failed to save token for user %s: %w", record.UserID, err)
	}

	return nil
}

// Delete removes the stored token pair for a user
func (r *tokenRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete token for user %s: %w", userID, err)
	}
	return nil
}
