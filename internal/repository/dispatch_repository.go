package repository

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// dispatchRepository implements DispatchRepository on Firestore
type dispatchRepository struct {
	db *database.Firestore
}

// NewDispatchRepository creates a new dispatch ledger repository
func NewDispatchRepository(db *database.Firestore) DispatchRepository {
	return &dispatchRepository{db: db}
}

// Get retrieves a ledger entry by trigger id
func (r *dispatchRepository) Get(ctx context.Context, triggerID string) (*domain.DispatchRecord, error) {
	snap, err := r.db.Client.Collection(dispatchesCollection).Doc(triggerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("dispatch %s: %w", triggerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dispatch %s: %w", triggerID, err)
	}

	record := &domain.DispatchRecord{}
	if err := snap.DataTo(record); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch %s: %w", triggerID, err)
	}

	return record, nil
}

// Record writes a ledger entry keyed by its trigger id
func (r *dispatchRepository) Record(ctx context.Context, record *domain.DispatchRecord) error {
	doc := r.db.Client.Collection(dispatchesCollection).Doc(record.TriggerID)
	if _, err := doc.Set(ctx, record); err != nil {
		return fmt.Errorf("failed to record dispatch %s: %w", record.TriggerID, err)
	}
	return nil
}
