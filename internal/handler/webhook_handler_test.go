package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/service"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
)

type recordingEngagement struct {
	fakeEngagement
	updates []int64
}

func (f *recordingEngagement) HandleUpdate(_ context.Context, update *telegram.Update) error {
	f.updates = append(f.updates, update.UpdateID)
	return f.err
}

func webhookRouter(eng service.Engagement) *gin.Engine {
	router := gin.New()
	router.POST("/webhook", NewWebhookHandler(eng, zap.NewNop()).Handle)
	return router
}

func TestWebhook_ProcessesUpdate(t *testing.T) {
	eng := &recordingEngagement{}
	router := webhookRouter(eng)

	payload := `{"update_id": 7, "message": {"message_id": 1, "from": {"id": 42}, "chat": {"id": 42}, "text": "/start"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{7}, eng.updates)
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	eng := &recordingEngagement{}
	router := webhookRouter(eng)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, eng.updates)
}

func TestWebhook_ProcessingErrorStillAcknowledged(t *testing.T) {
	eng := &recordingEngagement{}
	eng.err = domain.ErrUpstreamUnavailable
	router := webhookRouter(eng)

	payload := `{"update_id": 8, "message": {"message_id": 1, "from": {"id": 42}, "chat": {"id": 42}, "text": "/sleep"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
