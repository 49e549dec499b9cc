package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
)

// GenerateResult is a message body and the branch that produced it.
type GenerateResult struct {
	Body   string
	Source domain.BodySource
}

// Static fallbacks, sent whenever generation is unavailable.
var templates = map[domain.IntentKind]string{
	domain.KindMorningMotivation: "WAKE UP WARRIOR! Your greatness awaits. NO EXCUSES! 💪",
	domain.KindCheckIn:           "Evening check-in: did you keep the promises you made to yourself today? Tomorrow we go again. 💪",
	domain.KindHealthUpdate:      "Fresh recovery data just landed. Look it over and plan tomorrow like you mean it. 💪",
}

// generator implements Generator
type generator struct {
	completer Completer
	logger    *zap.Logger
}

// NewGenerator creates a new content generator
func NewGenerator(completer Completer, logger *zap.Logger) Generator {
	return &generator{completer: completer, logger: logger}
}

// Generate produces the message body for an intent. Any generation failure
// falls back to the static template for the kind; the caller always gets a
// sendable body.
func (g *generator) Generate(ctx context.Context, kind domain.IntentKind, uc *domain.UserContext) *GenerateResult {
	body, err := g.completer.Complete(ctx, systemPrompt(uc), userPrompt(kind, uc))
	if err != nil {
		g.logger.Warn("content generation failed, using template",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return &GenerateResult{Body: templateFor(kind), Source: domain.SourceTemplate}
	}

	return &GenerateResult{Body: body, Source: domain.SourceGenerated}
}

func templateFor(kind domain.IntentKind) string {
	if body, ok := templates[kind]; ok {
		return body
	}
	return templates[domain.KindMorningMotivation]
}

func systemPrompt(uc *domain.UserContext) string {
	var b strings.Builder
	b.WriteString("You are a relentless but caring personal coach on Telegram. ")
	b.WriteString("You push the user toward the life they said they want. ")
	b.WriteString("Write in second person, 2-4 sentences, no markdown, at most one emoji.")

	if uc.Profile.Manifesto != "" {
		b.WriteString("\n\nThe user's personal manifesto:\n")
		b.WriteString(uc.Profile.Manifesto)
	}
	if len(uc.Profile.QuizAnswers) > 0 {
		b.WriteString("\n\nWhat the user told you about themselves:\n")
		for question, answer := range uc.Profile.QuizAnswers {
			fmt.Fprintf(&b, "- %s: %s\n", question, answer)
		}
	}

	return b.String()
}

func userPrompt(kind domain.IntentKind, uc *domain.UserContext) string {
	var b strings.Builder

	switch kind {
	case domain.KindCheckIn:
		b.WriteString("Write an evening check-in. Ask whether today moved them toward their goals and set the tone for tomorrow.")
	case domain.KindHealthUpdate:
		b.WriteString("The user's latest sleep data just arrived. Comment on it concretely and tell them what to do with tonight.")
	default:
		b.WriteString("Write a fierce morning motivation message to get the user out of bed and after their goals.")
	}

	if summary := recordSummary(uc.RecentRecords); summary != "" {
		b.WriteString("\n\nLatest sleep metrics:\n")
		b.WriteString(summary)
	}

	return b.String()
}

// recordSummary renders recent records into prompt-friendly lines.
func recordSummary(records []domain.HealthRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "- %s (%s)\n", formatMetric(r), r.RecordedAt.Format("Jan 2"))
	}
	return b.String()
}

func formatMetric(r domain.HealthRecord) string {
	switch r.MetricType {
	case domain.MetricSlowWaveSleepMilli:
		return fmt.Sprintf("slow wave sleep %s", formatMillis(r.Value))
	case domain.MetricREMSleepMilli:
		return fmt.Sprintf("REM sleep %s", formatMillis(r.Value))
	case domain.MetricSleepPerformance:
		return fmt.Sprintf("sleep performance %.0f%%", r.Value)
	default:
		return fmt.Sprintf("%s %.1f", r.MetricType, r.Value)
	}
}

func formatMillis(milli float64) string {
	d := time.Duration(milli) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
