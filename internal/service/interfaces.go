package service

import (
	"context"
	"time"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

// OAuthClient is the WHOOP token lifecycle surface used by the vault and the
// account link flow.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*whoop.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*whoop.Token, error)
}

// SleepFetcher fetches one page of the incremental sleep feed.
type SleepFetcher interface {
	Sleeps(ctx context.Context, accessToken string, since time.Time, nextToken string) (*whoop.SleepPage, error)
}

// MessageSender delivers one text message to a chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) (int64, error)
}

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// TokenVault owns the stored WHOOP token pairs
type TokenVault interface {
	// ValidToken returns an access token usable for at least the refresh
	// margin, refreshing the pair if needed.
	ValidToken(ctx context.Context, userID string) (string, error)
	// ForceRefresh rotates the pair after an upstream rejected staleToken.
	ForceRefresh(ctx context.Context, userID, staleToken string) (string, error)
	StoreInitial(ctx context.Context, userID string, token *whoop.Token) error
	Unlink(ctx context.Context, userID string) error
}

// HealthSync ingests vendor health records incrementally
type HealthSync interface {
	Sync(ctx context.Context, userID string) (*SyncResult, error)
}

// Generator produces a message body for an intent. It never fails: when
// generation is unavailable it falls back to the static template for the kind.
type Generator interface {
	Generate(ctx context.Context, kind domain.IntentKind, uc *domain.UserContext) *GenerateResult
}

// Dispatcher sends a message at most once per trigger id
type Dispatcher interface {
	Dispatch(ctx context.Context, intent domain.MessageIntent, body string, source domain.BodySource) (*DispatchResult, error)
}

// UpdateDeduper claims inbound platform update ids exactly once
type UpdateDeduper interface {
	Claim(ctx context.Context, updateID int64) (bool, error)
}

// Engagement orchestrates triggers end to end
type Engagement interface {
	// RunScheduled fans a scheduled trigger out to every linked user.
	RunScheduled(ctx context.Context, kind domain.IntentKind, triggerID string) (*BroadcastResult, error)
	// HandleUpdate processes one inbound Telegram update.
	HandleUpdate(ctx context.Context, update *telegram.Update) error
	// CompleteLink finishes the OAuth flow and returns the linked Telegram id.
	CompleteLink(ctx context.Context, state, code string) (string, error)
}
