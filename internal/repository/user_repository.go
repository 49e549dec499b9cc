package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// userRepository implements UserRepository on Firestore
type userRepository struct {
	db *database.Firestore
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Firestore) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) doc(telegramID string) *firestore.DocumentRef {
	return r.db.Client.Collection(usersCollection).Doc(telegramID)
}

// Get retrieves a user profile by Telegram id
func (r *userRepository) Get(ctx context.Context, telegramID string) (*domain.UserProfile, error) {
	snap, err := r.doc(telegramID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("user %s: %w", telegramID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", telegramID, err)
	}

	profile := &domain.UserProfile{}
	if err := snap.DataTo(profile); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", telegramID, err)
	}

	return profile, nil
}

// Ensure returns the profile, creating an empty one on first contact
func (r *userRepository) Ensure(ctx context.Context, telegramID string) (*domain.UserProfile, error) {
	profile, err := r.Get(ctx, telegramID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	profile = &domain.UserProfile{
		TelegramID:  telegramID,
		QuizAnswers: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := r.doc(telegramID).Set(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", telegramID, err)
	}

	return profile, nil
}

// SetManifesto stores the user's personal manifesto
func (r *userRepository) SetManifesto(ctx context.Context, telegramID, manifesto string) error {
	_, err := r.doc(telegramID).Update(ctx, []firestore.Update{
		{Path: "manifesto", Value: manifesto},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("user %s: %w", telegramID, ErrNotFound)
		}
		return fmt.Errorf("failed to set manifesto for %s: %w", telegramID, err)
	}
	return nil
}

// SetQuizAnswer stores one quiz answer under the user's profile
func (r *userRepository) SetQuizAnswer(ctx context.Context, telegramID, questionID, answer string) error {
	_, err := r.doc(telegramID).Update(ctx, []firestore.Update{
		{Path: "quiz_answers." + questionID, Value: answer},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("user %s: %w", telegramID, ErrNotFound)
		}
		return fmt.Errorf("failed to set quiz answer for %s: %w", telegramID, err)
	}
	return nil
}

// SetLinked flips the WHOOP-linked flag
func (r *userRepository) SetLinked(ctx context.Context, telegramID string, linked bool) error {
	_, err := r.doc(telegramID).Update(ctx, []firestore.Update{
		{Path: "linked", Value: linked},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("user %s: %w", telegramID, ErrNotFound)
		}
		return fmt.Errorf("failed to set linked flag for %s: %w", telegramID, err)
	}
	return nil
}

// ListLinked returns all users with a linked WHOOP account
func (r *userRepository) ListLinked(ctx context.Context) ([]*domain.UserProfile, error) {
	iter := r.db.Client.Collection(usersCollection).
		Where("linked", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var users []*domain.UserProfile
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate linked users: %w", err)
		}

		profile := &domain.UserProfile{}
		if err := snap.DataTo(profile); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", snap.Ref.ID, err)
		}
		users = append(users, profile)
	}

	return users, nil
}
