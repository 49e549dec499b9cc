package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// oauthStateRepository implements OAuthStateRepository on Firestore
type oauthStateRepository struct {
	db *database.Firestore
}

// NewOAuthStateRepository creates a new OAuth state repository
func NewOAuthStateRepository(db *database.Firestore) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

func (r *oauthStateRepository) doc(state string) *firestore.DocumentRef {
	return r.db.Client.Collection(oauthStatesCollection).Doc(state)
}

// Create stores a fresh state value bound to a Telegram id
func (r *oauthStateRepository) Create(ctx context.Context, state, telegramID string) error {
	_, err := r.doc(state).Set(ctx, &domain.OAuthState{
		State:      state,
		TelegramID: telegramID,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}
	return nil
}

// Consume resolves a state to its Telegram id and deletes it in the same
// transaction, so a replayed callback cannot use the value twice.
func (r *oauthStateRepository) Consume(ctx context.Context, state string) (string, error) {
	doc := r.doc(state)

	var telegramID string
	err := r.db.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrStateConsumed
			}
			return err
		}

		record := &domain.OAuthState{}
		if err := snap.DataTo(record); err != nil {
			return err
		}
		telegramID = record.TelegramID

		return tx.Delete(doc)
	})
	if err != nil {
		if err == ErrStateConsumed {
			return "", ErrStateConsumed
		}
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}

	return telegramID, nil
}
