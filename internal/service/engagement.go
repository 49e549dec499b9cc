package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
)

// recentRecordLimit caps how many records feed the generation prompt.
const recentRecordLimit = 9

// BroadcastResult summarizes a scheduled trigger fan-out.
type BroadcastResult struct {
	Kind        domain.IntentKind `json:"kind"`
	Users       int               `json:"users"`
	Sent        int               `json:"sent"`
	Duplicates  int               `json:"duplicates"`
	Skipped     int               `json:"skipped"`
	AuthExpired int               `json:"auth_expired"`
	Failed      int               `json:"failed"`
}

// EngagementDeps are the collaborators the orchestrator wires together.
type EngagementDeps struct {
	Users      repository.UserRepository
	Health     repository.HealthRecordRepository
	States     repository.OAuthStateRepository
	Vault      TokenVault
	Sync       HealthSync
	Generator  Generator
	Dispatcher Dispatcher
	OAuth      OAuthClient
	Sender     MessageSender
	Dedup      UpdateDeduper
	Logger     *zap.Logger
}

// engagement implements Engagement
type engagement struct {
	EngagementDeps
}

// NewEngagement creates the trigger orchestrator
func NewEngagement(deps EngagementDeps) Engagement {
	return &engagement{EngagementDeps: deps}
}

// RunScheduled fans one scheduled trigger out to every linked user. Each user
// gets a derived trigger id, so a retry of the whole broadcast skips the users
// already served and only redoes the rest.
func (e *engagement) RunScheduled(ctx context.Context, kind domain.IntentKind, triggerID string) (*BroadcastResult, error) {
	users, err := e.Users.ListLinked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}

	result := &BroadcastResult{Kind: kind, Users: len(users)}
	var firstErr error

	for _, user := range users {
		if ctx.Err() != nil {
			return result, fmt.Errorf("%w: broadcast interrupted", domain.ErrDeadlineExceeded)
		}

		intent := domain.MessageIntent{
			UserID:    user.TelegramID,
			Kind:      kind,
			TriggerID: triggerID + ":" + user.TelegramID,
		}

		dispatch, err := e.engageUser(ctx, user, intent)
		switch {
		case errors.Is(err, domain.ErrAuthExpired):
			result.AuthExpired++
			e.handleAuthExpired(ctx, user.TelegramID, intent.TriggerID)

		case err != nil:
			result.Failed++
			if firstErr == nil && domain.Retryable(err) {
				firstErr = err
			}
			e.Logger.Error("user engagement failed",
				zap.String("user_id", user.TelegramID),
				zap.String("kind", string(kind)),
				zap.Error(err))

		case dispatch == nil:
			result.Skipped++

		case dispatch.Duplicate:
			result.Duplicates++

		default:
			result.Sent++
		}
	}

	// A retryable per-user failure fails the trigger so the scheduler retries;
	// the per-user ledger entries make the redo cheap.
	return result, firstErr
}

func (e *engagement) engageUser(ctx context.Context, user *domain.UserProfile, intent domain.MessageIntent) (*DispatchResult, error) {
	if intent.Kind == domain.KindHealthUpdate {
		syncResult, err := e.Sync.Sync(ctx, user.TelegramID)
		if err != nil {
			return nil, err
		}
		// No new data means nothing worth a message.
		if syncResult.RecordsIngested == 0 {
			return nil, nil
		}
	}

	records, err := e.Health.Recent(ctx, user.TelegramID, recentRecordLimit)
	if err != nil {
		return nil, err
	}

	uc := &domain.UserContext{Profile: *user, RecentRecords: recordValues(records)}
	generated := e.Generator.Generate(ctx, intent.Kind, uc)

	return e.Dispatcher.Dispatch(ctx, intent, generated.Body, generated.Source)
}

// handleAuthExpired marks the user unlinked and tells them once, keyed off the
// trigger id so a broadcast retry does not nag again.
func (e *engagement) handleAuthExpired(ctx context.Context, userID, triggerID string) {
	e.Logger.Warn("user authorization expired, unlinking", zap.String("user_id", userID))

	if err := e.Users.SetLinked(ctx, userID, false); err != nil {
		e.Logger.Error("failed to unlink user", zap.String("user_id", userID), zap.Error(err))
	}
	if err := e.Vault.Unlink(ctx, userID); err != nil {
		e.Logger.Error("failed to drop stale token", zap.String("user_id", userID), zap.Error(err))
	}

	intent := domain.MessageIntent{UserID: userID, TriggerID: triggerID + ":relink"}
	body := "Your WHOOP connection expired. Send /linkwhoop to reconnect and keep the data flowing."
	if _, err := e.Dispatcher.Dispatch(ctx, intent, body, domain.SourceTemplate); err != nil {
		e.Logger.Warn("failed to notify user about expired link", zap.String("user_id", userID), zap.Error(err))
	}
}

// HandleUpdate processes one inbound Telegram update. Update ids are claimed
// in Redis first, so webhook redeliveries and polling overlaps are no-ops.
func (e *engagement) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	if update.Message == nil || update.Message.Text == "" {
		return nil
	}

	claimed, err := e.Dedup.Claim(ctx, update.UpdateID)
	if err != nil {
		// Redis trouble should not drop user messages; process anyway.
		e.Logger.Warn("update dedup unavailable", zap.Error(err))
	} else if !claimed {
		e.Logger.Debug("duplicate update skipped", zap.Int64("update_id", update.UpdateID))
		return nil
	}

	userID := update.SenderID()
	chatID := update.ChatID()

	profile, err := e.Users.Ensure(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user profile: %w", err)
	}

	command, args := splitCommand(update.Message.Text)
	e.Logger.Info("bot command received",
		zap.String("user_id", userID),
		zap.String("command", command))

	switch command {
	case "/start":
		return e.sendText(ctx, chatID, startMessage)

	case "/linkwhoop":
		authURL, err := e.beginLink(ctx, userID)
		if err != nil {
			e.Logger.Error("failed to start account link", zap.String("user_id", userID), zap.Error(err))
			return e.sendText(ctx, chatID, tryAgainMessage)
		}
		return e.sendText(ctx, chatID, "Connect your WHOOP account here:\n"+authURL)

	case "/motivateme":
		return e.motivate(ctx, profile, chatID, update.UpdateID)

	case "/quiz":
		return e.nextQuizQuestion(ctx, profile, chatID)

	case "/answer":
		return e.storeQuizAnswer(ctx, userID, chatID, args)

	case "/sleep":
		return e.sleepSummary(ctx, userID, chatID, args)

	case "/manifesto":
		if args == "" {
			return e.sendText(ctx, chatID, "Usage: /manifesto <the life you are building>")
		}
		if err := e.Users.SetManifesto(ctx, userID, args); err != nil {
			e.Logger.Error("failed to store manifesto", zap.String("user_id", userID), zap.Error(err))
			return e.sendText(ctx, chatID, tryAgainMessage)
		}
		return e.sendText(ctx, chatID, "Manifesto locked in. Every message you get is now measured against it.")

	default:
		return e.sendText(ctx, chatID, helpMessage)
	}
}

func (e *engagement) motivate(ctx context.Context, profile *domain.UserProfile, chatID string, updateID int64) error {
	records, err := e.Health.Recent(ctx, profile.TelegramID, recentRecordLimit)
	if err != nil {
		e.Logger.Error("failed to load recent records", zap.String("user_id", profile.TelegramID), zap.Error(err))
		records = nil
	}

	uc := &domain.UserContext{Profile: *profile, RecentRecords: recordValues(records)}
	generated := e.Generator.Generate(ctx, domain.KindMorningMotivation, uc)

	intent := domain.MessageIntent{
		UserID:    chatID,
		Kind:      domain.KindMorningMotivation,
		TriggerID: "update:" + strconv.FormatInt(updateID, 10),
	}
	_, err = e.Dispatcher.Dispatch(ctx, intent, generated.Body, generated.Source)
	return err
}

// quizQuestion is one profiling question. Answers feed the generation prompt.
type quizQuestion struct {
	ID   string
	Text string
}

var quizQuestions = []quizQuestion{
	{ID: "q1", Text: "What do you fear most? A) Illness or B) Not fitting in?"},
	{ID: "q2", Text: "What motivates you more? A) Achieving success or B) Avoiding failure?"},
}

// nextQuizQuestion sends the first question the user has not answered yet.
func (e *engagement) nextQuizQuestion(ctx context.Context, profile *domain.UserProfile, chatID string) error {
	for _, q := range quizQuestions {
		if _, answered := profile.QuizAnswers[q.ID]; answered {
			continue
		}
		text := fmt.Sprintf("Quiz question: %s\nAnswer with /answer %s <your answer>", q.Text, q.ID)
		return e.sendText(ctx, chatID, text)
	}
	return e.sendText(ctx, chatID, "You have answered every quiz question. I know enough to coach you properly.")
}

func (e *engagement) storeQuizAnswer(ctx context.Context, userID, chatID, args string) error {
	questionID, answer, _ := strings.Cut(args, " ")
	answer = strings.TrimSpace(answer)
	if questionID == "" || answer == "" {
		return e.sendText(ctx, chatID, "Answer in the format /answer <question_id> <answer>")
	}

	if err := e.Users.SetQuizAnswer(ctx, userID, questionID, answer); err != nil {
		e.Logger.Error("failed to store quiz answer", zap.String("user_id", userID), zap.Error(err))
		return e.sendText(ctx, chatID, tryAgainMessage)
	}
	return e.sendText(ctx, chatID, fmt.Sprintf("Saved your answer for %s. Send /quiz for the next question.", questionID))
}

func (e *engagement) sleepSummary(ctx context.Context, userID, chatID, args string) error {
	day := time.Now()
	if args != "" {
		parsed, err := time.Parse("2006-01-02", args)
		if err != nil {
			return e.sendText(ctx, chatID, "I could not read that date. Use /sleep YYYY-MM-DD or plain /sleep for today.")
		}
		day = parsed
	}

	records, err := e.Health.ForDay(ctx, userID, day)
	if err != nil {
		e.Logger.Error("failed to load sleep records", zap.String("user_id", userID), zap.Error(err))
		return e.sendText(ctx, chatID, tryAgainMessage)
	}
	if len(records) == 0 {
		return e.sendText(ctx, chatID, fmt.Sprintf("No sleep data for %s yet. Link WHOOP with /linkwhoop or wait for the next sync.", day.Format("Jan 2")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sleep for %s:\n", day.Format("Jan 2"))
	for _, r := range records {
		fmt.Fprintf(&b, "• %s\n", formatMetric(*r))
	}
	return e.sendText(ctx, chatID, b.String())
}

// beginLink creates a one-time state value and returns the authorization URL.
func (e *engagement) beginLink(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	if err := e.States.Create(ctx, state, userID); err != nil {
		return "", err
	}
	return e.OAuth.AuthCodeURL(state), nil
}

// CompleteLink finishes the OAuth flow: consumes the state, exchanges the
// code, stores the token pair and marks the user linked.
func (e *engagement) CompleteLink(ctx context.Context, state, code string) (string, error) {
	userID, err := e.States.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, repository.ErrStateConsumed) {
			return "", fmt.Errorf("%w: unknown or reused oauth state", domain.ErrValidationFailed)
		}
		return "", err
	}

	token, err := e.OAuth.Exchange(ctx, code)
	if err != nil {
		// A rejected code is the caller's problem, not the user's link.
		return "", classifyOAuthError(err, domain.ErrValidationFailed)
	}

	if err := e.Vault.StoreInitial(ctx, userID, token); err != nil {
		return "", err
	}
	if err := e.Users.SetLinked(ctx, userID, true); err != nil {
		return "", err
	}

	e.Logger.Info("whoop account linked", zap.String("user_id", userID))

	if err := e.sendText(ctx, userID, "WHOOP connected. Your sleep data now fuels your coaching. 💪"); err != nil {
		e.Logger.Warn("failed to send link confirmation", zap.String("user_id", userID), zap.Error(err))
	}

	return userID, nil
}

func (e *engagement) sendText(ctx context.Context, chatID, text string) error {
	if _, err := e.Sender.SendMessage(ctx, chatID, text); err != nil {
		return classifySendError(err)
	}
	return nil
}

func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	command, args, _ := strings.Cut(text, " ")
	// Commands in groups arrive as /cmd@botname.
	command, _, _ = strings.Cut(command, "@")
	return command, strings.TrimSpace(args)
}

func recordValues(records []*domain.HealthRecord) []domain.HealthRecord {
	out := make([]domain.HealthRecord, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	return out
}

const (
	startMessage = "I am your coach. I will wake you up, check on you and read your recovery data.\n\n" +
		"/linkwhoop - connect your WHOOP account\n" +
		"/quiz - answer a few questions so I know who I am pushing\n" +
		"/motivateme - get a push right now\n" +
		"/sleep - see your latest sleep\n" +
		"/manifesto <text> - tell me what you are building"

	helpMessage = "Commands I know:\n" +
		"/linkwhoop - connect WHOOP\n" +
		"/quiz - next profiling question\n" +
		"/answer <id> <text> - answer a quiz question\n" +
		"/motivateme - instant motivation\n" +
		"/sleep [YYYY-MM-DD] - sleep summary\n" +
		"/manifesto <text> - set your manifesto"

	tryAgainMessage = "Something went wrong on my side. Try again in a minute."
)
