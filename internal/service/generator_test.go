package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
)

func TestGenerate_UsesCompletion(t *testing.T) {
	completer := &fakeCompleter{fn: func(system, prompt string) (string, error) {
		assert.Contains(t, system, "No snooze. Ever.")
		assert.Contains(t, prompt, "morning motivation")
		return "Get up. The version of you that wins is already awake.", nil
	}}

	gen := NewGenerator(completer, zap.NewNop())
	uc := &domain.UserContext{Profile: domain.UserProfile{Manifesto: "No snooze. Ever."}}

	result := gen.Generate(context.Background(), domain.KindMorningMotivation, uc)
	assert.Equal(t, domain.SourceGenerated, result.Source)
	assert.Contains(t, result.Body, "Get up.")
}

func TestGenerate_FallsBackToTemplateOnError(t *testing.T) {
	completer := &fakeCompleter{fn: func(string, string) (string, error) {
		return "", fmt.Errorf("completion timed out: %w", context.DeadlineExceeded)
	}}

	gen := NewGenerator(completer, zap.NewNop())

	result := gen.Generate(context.Background(), domain.KindMorningMotivation, &domain.UserContext{})
	assert.Equal(t, domain.SourceTemplate, result.Source)
	assert.Equal(t, templates[domain.KindMorningMotivation], result.Body)
}

func TestGenerate_TemplatePerKind(t *testing.T) {
	completer := &fakeCompleter{fn: func(string, string) (string, error) {
		return "", fmt.Errorf("unavailable")
	}}
	gen := NewGenerator(completer, zap.NewNop())

	for _, kind := range []domain.IntentKind{domain.KindMorningMotivation, domain.KindCheckIn, domain.KindHealthUpdate} {
		result := gen.Generate(context.Background(), kind, &domain.UserContext{})
		assert.Equal(t, templates[kind], result.Body, "kind %s", kind)
		assert.NotEmpty(t, result.Body)
	}
}

func TestGenerate_PromptCarriesQuizAnswers(t *testing.T) {
	var captured string
	completer := &fakeCompleter{fn: func(system, _ string) (string, error) {
		captured = system
		return "ok", nil
	}}
	gen := NewGenerator(completer, zap.NewNop())

	uc := &domain.UserContext{Profile: domain.UserProfile{
		QuizAnswers: map[string]string{"q1": "A) Illness"},
	}}
	gen.Generate(context.Background(), domain.KindCheckIn, uc)

	assert.Contains(t, captured, "told you about themselves")
	assert.Contains(t, captured, "q1: A) Illness")
}

func TestGenerate_PromptCarriesHealthRecords(t *testing.T) {
	var captured string
	completer := &fakeCompleter{fn: func(_, prompt string) (string, error) {
		captured = prompt
		return "ok", nil
	}}
	gen := NewGenerator(completer, zap.NewNop())

	uc := &domain.UserContext{
		RecentRecords: []domain.HealthRecord{
			{MetricType: domain.MetricSlowWaveSleepMilli, Value: 92 * 60 * 1000, RecordedAt: time.Date(2026, 8, 22, 7, 0, 0, 0, time.UTC)},
			{MetricType: domain.MetricSleepPerformance, Value: 88, RecordedAt: time.Date(2026, 8, 22, 7, 0, 0, 0, time.UTC)},
		},
	}
	gen.Generate(context.Background(), domain.KindHealthUpdate, uc)

	assert.Contains(t, captured, "slow wave sleep 1h 32m")
	assert.Contains(t, captured, "sleep performance 88%")
}
