package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

// tokenVault implements TokenVault
type tokenVault struct {
	tokens repository.TokenRepository
	oauth  OAuthClient
	margin time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewTokenVault creates a new token vault. margin is the window before expiry
// within which a token is refreshed instead of handed out.
func NewTokenVault(tokens repository.TokenRepository, oauth OAuthClient, margin time.Duration, logger *zap.Logger) TokenVault {
	return &tokenVault{
		tokens: tokens,
		oauth:  oauth,
		margin: margin,
		logger: logger,
	}
}

// ValidToken returns an access token valid for at least the refresh margin
func (s *tokenVault) ValidToken(ctx context.Context, userID string) (string, error) {
	record, err := s.get(ctx, userID)
	if err != nil {
		return "", err
	}
	if record.ValidFor(time.Now(), s.margin) {
		return record.AccessToken, nil
	}

	// Concurrent callers for the same user share one refresh.
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		record, err := s.get(ctx, userID)
		if err != nil {
			return "", err
		}
		// A flight that just finished may have refreshed already.
		if record.ValidFor(time.Now(), s.margin) {
			return record.AccessToken, nil
		}
		return s.rotate(ctx, record)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// ForceRefresh rotates the pair after staleToken was rejected upstream
func (s *tokenVault) ForceRefresh(ctx context.Context, userID, staleToken string) (string, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		record, err := s.get(ctx, userID)
		if err != nil {
			return "", err
		}
		// Another caller already rotated past the rejected token.
		if record.AccessToken != "" && record.AccessToken != staleToken {
			return record.AccessToken, nil
		}
		return s.rotate(ctx, record)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// StoreInitial persists the pair obtained by the OAuth callback exchange
func (s *tokenVault) StoreInitial(ctx context.Context, userID string, token *whoop.Token) error {
	record := &domain.TokenRecord{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
		Scope:        token.Scope,
		Version:      1,
		UpdatedAt:    time.Now(),
	}
	return s.tokens.Save(ctx, record)
}

// Unlink removes the stored pair
func (s *tokenVault) Unlink(ctx context.Context, userID string) error {
	return s.tokens.Delete(ctx, userID)
}

func (s *tokenVault) get(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	record, err := s.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("no stored token for user %s: %w", userID, domain.ErrAuthExpired)
		}
		return nil, err
	}
	return record, nil
}

// rotate refreshes the pair and persists it guarded by the version read.
func (s *tokenVault) rotate(ctx context.Context, record *domain.TokenRecord) (string, error) {
	fresh, err := s.oauth.Refresh(ctx, record.RefreshToken)
	if err != nil {
		return "", classifyOAuthError(err, domain.ErrAuthExpired)
	}

	updated := &domain.TokenRecord{
		UserID:       record.UserID,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		ExpiresAt:    fresh.ExpiresAt,
		Scope:        fresh.Scope,
		Version:      record.Version + 1,
		UpdatedAt:    time.Now(),
	}
	if updated.Scope == "" {
		updated.Scope = record.Scope
	}

	if err := s.tokens.SaveVersioned(ctx, updated, record.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// Lost the race: the stored pair is newer than ours. Use it and
			// discard the pair we fetched.
			current, gerr := s.get(ctx, record.UserID)
			if gerr != nil {
				return "", gerr
			}
			s.logger.Debug("token refresh lost version race",
				zap.String("user_id", record.UserID),
				zap.Int64("stored_version", current.Version))
			return current.AccessToken, nil
		}
		return "", err
	}

	s.logger.Info("token pair rotated",
		zap.String("user_id", record.UserID),
		zap.Int64("version", updated.Version),
		zap.Time("expires_at", updated.ExpiresAt))

	return updated.AccessToken, nil
}

// classifyOAuthError maps a token endpoint failure to a domain error kind.
// invalidGrantKind distinguishes a rejected refresh token (terminal for the
// user) from a rejected authorization code (terminal for the request).
func classifyOAuthError(err error, invalidGrantKind error) error {
	if errors.Is(err, whoop.ErrInvalidGrant) {
		return fmt.Errorf("%w: %v", invalidGrantKind, err)
	}

	var apiErr *whoop.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RateLimited() {
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, err)
	}

	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}
