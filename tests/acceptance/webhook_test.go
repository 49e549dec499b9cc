package acceptance

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

func (s *Suite) postUpdate(updateID int64, userID int64, text, secret string) *http.Response {
	payload := fmt.Sprintf(
		`{"update_id": %d, "message": {"message_id": 1, "from": {"id": %d}, "chat": {"id": %d}, "text": %q}}`,
		updateID, userID, userID, text,
	)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/webhook", bytes.NewBufferString(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) TestWebhookRejectsWrongSecret() {
	resp := s.postUpdate(1, 42, "/start", "wrong-secret")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Empty(s.Telegram.Sent())
}

func (s *Suite) TestWebhookStartCommand() {
	resp := s.postUpdate(2, 42, "/start", webhookSecret)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	sent := s.Telegram.Sent()
	s.Require().Len(sent, 1)
	s.Equal("42", fmt.Sprint(sent[0]["chat_id"]))
	s.Contains(fmt.Sprint(sent[0]["text"]), "/linkwhoop")
}

func (s *Suite) TestWebhookRedeliveryProcessedOnce() {
	first := s.postUpdate(3, 42, "/start", webhookSecret)
	first.Body.Close()
	second := s.postUpdate(3, 42, "/start", webhookSecret)
	second.Body.Close()

	s.Equal(http.StatusOK, first.StatusCode)
	s.Equal(http.StatusOK, second.StatusCode)
	s.Len(s.Telegram.Sent(), 1, "a redelivered update id must not produce a second message")
}

func (s *Suite) TestWebhookMotivateMeFallsBackToTemplate() {
	resp := s.postUpdate(4, 42, "/motivateme", webhookSecret)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	// Wait out the dead completion endpoint's fast failure.
	s.Eventually(func() bool {
		return len(s.Telegram.Sent()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	sent := s.Telegram.Sent()
	s.Require().Len(sent, 1)
	s.Contains(fmt.Sprint(sent[0]["text"]), "WAKE UP WARRIOR")
}
