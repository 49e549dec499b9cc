package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Firestore wraps the Firestore client used as the per-key document store.
type Firestore struct {
	Client *firestore.Client
}

// NewFirestore creates a Firestore client for the given project.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Firestore{Client: client}, nil
}

// Close closes the underlying client.
func (f *Firestore) Close() error {
	return f.Client.Close()
}

// Ping checks if Firestore is reachable by listing collections.
func (f *Firestore) Ping(ctx context.Context) error {
	iter := f.Client.Collections(ctx)
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}
