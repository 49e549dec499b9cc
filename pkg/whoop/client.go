// Package whoop is a client for the WHOOP developer API: the OAuth2 token
// lifecycle and incremental fetching of sleep activity records.
package whoop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// ErrInvalidGrant means the authorization server rejected the refresh token.
// The user must re-authorize; retrying cannot succeed.
var ErrInvalidGrant = errors.New("refresh token rejected (invalid_grant)")

// APIError is a non-2xx response from the WHOOP API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whoop api error %d: %s", e.StatusCode, e.Body)
}

// Unauthorized reports whether the access token was rejected.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// RateLimited reports whether the API throttled the caller.
func (e *APIError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// ServerError reports an upstream 5xx.
func (e *APIError) ServerError() bool { return e.StatusCode >= 500 }

// Config holds the OAuth application settings and API endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
	PageLimit    int
}

// Token is a WHOOP access/refresh token pair. WHOOP rotates the refresh token
// on every exchange, so callers must persist both values.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Client calls the WHOOP OAuth endpoints and developer API.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
	pageLimit  int
}

// NewClient builds a client from config.
func NewClient(cfg Config) *Client {
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 25
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiBaseURL: cfg.APIBaseURL,
		pageLimit:  pageLimit,
	}
}

// AuthCodeURL returns the authorization URL the user visits to link WHOOP.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyTokenError("code exchange", err)
	}

	return fromOAuthToken(tok), nil
}

// Refresh exchanges a refresh token for a fresh pair. An invalid_grant
// response surfaces as ErrInvalidGrant; other failures keep their HTTP
// classification for the caller's retry decision.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	ts := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, classifyTokenError("token refresh", err)
	}

	return fromOAuthToken(tok), nil
}

func classifyTokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%s: %w", op, ErrInvalidGrant)
		}
		return fmt.Errorf("%s: %w", op, &APIError{
			StatusCode: rErr.Response.StatusCode,
			Body:       string(rErr.Body),
		})
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func fromOAuthToken(tok *oauth2.Token) *Token {
	scope, _ := tok.Extra("scope").(string)
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
	}
}

// SleepPage is one page of the incremental sleep feed. An empty NextToken
// (or an empty page) signals exhaustion.
type SleepPage struct {
	Records   []SleepRecord `json:"records"`
	NextToken string        `json:"next_token"`
}

// SleepRecord is one scored sleep activity.
type SleepRecord struct {
	ID    int64     `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Score struct {
		StageSummary struct {
			TotalSlowWaveSleepTimeMilli int64 `json:"total_slow_wave_sleep_time_milli"`
			TotalREMSleepTimeMilli      int64 `json:"total_rem_sleep_time_milli"`
		} `json:"stage_summary"`
		SleepPerformancePercentage float64 `json:"sleep_performance_percentage"`
	} `json:"score"`
}

// Sleeps fetches one page of sleep activities recorded at or after since.
// Pass the previous page's NextToken to continue; pass "" for the first page.
func (c *Client) Sleeps(ctx context.Context, accessToken string, since time.Time, nextToken string) (*SleepPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageLimit))
	if !since.IsZero() {
		q.Set("start", since.UTC().Format(time.RFC3339))
	}
	if nextToken != "" {
		q.Set("nextToken", nextToken)
	}

	reqURL := fmt.Sprintf("%s/v1/activity/sleep?%s", c.apiBaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sleep request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sleep request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page SleepPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode sleep page: %w", err)
	}

	return &page, nil
}
