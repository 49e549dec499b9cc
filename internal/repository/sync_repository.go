package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// cursorRepository implements CursorRepository on Firestore
type cursorRepository struct {
	db *database.Firestore
}

// NewCursorRepository creates a new sync cursor repository
func NewCursorRepository(db *database.Firestore) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) doc(userID string) *firestore.DocumentRef {
	return r.db.Client.Collection(cursorsCollection).Doc(userID)
}

// Get retrieves the sync cursor for a user
func (r *cursorRepository) Get(ctx context.Context, userID string) (*domain.SyncCursor, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("cursor for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cursor for user %s: %w", userID, err)
	}

	cursor := &domain.SyncCursor{}
	if err := snap.DataTo(cursor); err != nil {
		return nil, fmt.Errorf("failed to decode cursor for user %s: %w", userID, err)
	}

	return cursor, nil
}

// Advance moves the cursor forward to syncedAt. A concurrent run that already
// advanced past syncedAt wins; the cursor never moves backwards.
func (r *cursorRepository) Advance(ctx context.Context, userID string, syncedAt time.Time, lastRecordID string) error {
	doc := r.doc(userID)

	err := r.db.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if err == nil {
			current := &domain.SyncCursor{}
			if err := snap.DataTo(current); err != nil {
				return err
			}
			if !syncedAt.After(current.LastSyncedAt) {
				return nil
			}
		}

		return tx.Set(doc, &domain.SyncCursor{
			UserID:       userID,
			LastSyncedAt: syncedAt,
			LastRecordID: lastRecordID,
			UpdatedAt:    time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to advance cursor for user %s: %w", userID, err)
	}

	return nil
}

// healthRecordRepository implements HealthRecordRepository on Firestore
type healthRecordRepository struct {
	db *database.Firestore
}

// NewHealthRecordRepository creates a new health record repository
func NewHealthRecordRepository(db *database.Firestore) HealthRecordRepository {
	return &healthRecordRepository{db: db}
}

// Upsert writes a record under its natural key. Replaying the same source
// record overwrites the document with identical content.
func (r *healthRecordRepository) Upsert(ctx context.Context, record *domain.HealthRecord) error {
	doc := r.db.Client.Collection(healthCollection).Doc(record.Key())
	if _, err := doc.Set(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert health record %s: %w", record.Key(), err)
	}
	return nil
}

// Recent returns the most recent records for a user, newest first
func (r *healthRecordRepository) Recent(ctx context.Context, userID string, limit int) ([]*domain.HealthRecord, error) {
	iter := r.db.Client.Collection(healthCollection).
		Where("user_id", "==", userID).
		OrderBy("recorded_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	records, err := r.collect(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent records for user %s: %w", userID, err)
	}
	return records, nil
}

// ForDay returns all records for a user recorded within the given calendar day
func (r *healthRecordRepository) ForDay(ctx context.Context, userID string, day time.Time) ([]*domain.HealthRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	iter := r.db.Client.Collection(healthCollection).
		Where("user_id", "==", userID).
		Where("recorded_at", ">=", start).
		Where("recorded_at", "<", end).
		Documents(ctx)

	records, err := r.collect(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for user %s on %s: %w",
			userID, start.Format("2006-01-02"), err)
	}
	return records, nil
}

func (r *healthRecordRepository) collect(iter *firestore.DocumentIterator) ([]*domain.HealthRecord, error) {
	defer iter.Stop()

	var records []*domain.HealthRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		record := &domain.HealthRecord{}
		if err := snap.DataTo(record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}
