package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 42, "chat": map[string]any{"id": 7}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", 5*time.Second,
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
	)

	msgID, err := client.SendMessage(context.Background(), "7", "hello")
	require.NoError(t, err)

	assert.Equal(t, int64(42), msgID)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "7", gotPayload["chat_id"])
	assert.Equal(t, "hello", gotPayload["text"])
	assert.Equal(t, "HTML", gotPayload["parse_mode"])
}

func TestSendMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 5",
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", 5*time.Second, WithBaseURL(srv.URL))

	_, err := client.SendMessage(context.Background(), "7", "hello")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, 429, apiErr.Code)
	assert.True(t, apiErr.RateLimited())
}

func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(100), payload["offset"])

		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 100,
					"message": map[string]any{
						"message_id": 1,
						"from":       map[string]any{"id": 555},
						"chat":       map[string]any{"id": 555, "type": "private"},
						"text":       "/start",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", 5*time.Second, WithBaseURL(srv.URL))

	updates, err := client.GetUpdates(context.Background(), 100, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	assert.Equal(t, int64(100), updates[0].UpdateID)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, "555", updates[0].SenderID())
	assert.Equal(t, "555", updates[0].ChatID())
}

func TestSetWebhook(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}))
	defer srv.Close()

	client := NewClient("test-token", 5*time.Second, WithBaseURL(srv.URL))

	err := client.SetWebhook(context.Background(), "https://coach.example.com/webhook", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "https://coach.example.com/webhook", gotPayload["url"])
	assert.Equal(t, "s3cret", gotPayload["secret_token"])
}
