package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

func seedToken(t *testing.T, tokens *memTokens, userID string, expiresAt time.Time) {
	t.Helper()
	err := tokens.Save(context.Background(), &domain.TokenRecord{
		UserID:       userID,
		AccessToken:  "access-v1",
		RefreshToken: "refresh-v1",
		ExpiresAt:    expiresAt,
		Version:      1,
	})
	require.NoError(t, err)
}

func TestValidToken_CachedTokenReturnedWithoutRefresh(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(time.Hour))
	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		t.Fatal("refresh must not be called for a valid token")
		return nil, nil
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	got, err := vault.ValidToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-v1", got)
	assert.Equal(t, 0, oauth.calls())
}

func TestValidToken_ExpiredTokenRefreshed(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(10*time.Second))
	oauth := &fakeOAuth{refreshFn: func(refreshToken string) (*whoop.Token, error) {
		assert.Equal(t, "refresh-v1", refreshToken)
		return &whoop.Token{
			AccessToken:  "access-v2",
			RefreshToken: "refresh-v2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	got, err := vault.ValidToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-v2", got)

	stored, err := tokens.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-v2", stored.RefreshToken)
	assert.Equal(t, int64(2), stored.Version)
}

func TestValidToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(-time.Minute))
	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		time.Sleep(30 * time.Millisecond)
		return &whoop.Token{
			AccessToken:  "access-v2",
			RefreshToken: "refresh-v2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = vault.ValidToken(context.Background(), "u1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-v2", results[i])
	}
	assert.Equal(t, 1, oauth.calls())
}

func TestValidToken_InvalidGrantIsAuthExpired(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(-time.Minute))
	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		return nil, whoop.ErrInvalidGrant
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	_, err := vault.ValidToken(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.False(t, domain.Retryable(err))
}

func TestValidToken_NoStoredTokenIsAuthExpired(t *testing.T) {
	vault := NewTokenVault(newMemTokens(), &fakeOAuth{}, time.Minute, zap.NewNop())

	_, err := vault.ValidToken(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
}

func TestValidToken_RefreshRateLimitClassified(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(-time.Minute))
	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		return nil, &whoop.APIError{StatusCode: 429, Body: "slow down"}
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	_, err := vault.ValidToken(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, domain.Retryable(err))
}

func TestForceRefresh_SkipsWhenAnotherCallerAlreadyRotated(t *testing.T) {
	tokens := newMemTokens()
	err := tokens.Save(context.Background(), &domain.TokenRecord{
		UserID:       "u1",
		AccessToken:  "access-v2",
		RefreshToken: "refresh-v2",
		ExpiresAt:    time.Now().Add(time.Hour),
		Version:      2,
	})
	require.NoError(t, err)

	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		t.Fatal("refresh must not run when the stored token is already newer")
		return nil, nil
	}}
	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	got, err := vault.ForceRefresh(context.Background(), "u1", "access-v1")
	require.NoError(t, err)
	assert.Equal(t, "access-v2", got)
}

func TestForceRefresh_RotatesRejectedToken(t *testing.T) {
	tokens := newMemTokens()
	seedToken(t, tokens, "u1", time.Now().Add(time.Hour))
	oauth := &fakeOAuth{refreshFn: func(string) (*whoop.Token, error) {
		return &whoop.Token{
			AccessToken:  "access-v2",
			RefreshToken: "refresh-v2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}}

	vault := NewTokenVault(tokens, oauth, time.Minute, zap.NewNop())

	got, err := vault.ForceRefresh(context.Background(), "u1", "access-v1")
	require.NoError(t, err)
	assert.Equal(t, "access-v2", got)
	assert.Equal(t, 1, oauth.calls())
}
