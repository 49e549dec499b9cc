package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

// In-memory repository fakes shared by the service tests.

type memTokens struct {
	mu      sync.Mutex
	records map[string]*domain.TokenRecord
}

func newMemTokens() *memTokens {
	return &memTokens{records: map[string]*domain.TokenRecord{}}
}

func (m *memTokens) Get(_ context.Context, userID string) (*domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memTokens) Save(_ context.Context, record *domain.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.UserID] = &cp
	return nil
}

func (m *memTokens) SaveVersioned(_ context.Context, record *domain.TokenRecord, fromVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[record.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != fromVersion {
		return repository.ErrVersionConflict
	}
	cp := *record
	m.records[record.UserID] = &cp
	return nil
}

func (m *memTokens) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

type memCursors struct {
	mu      sync.Mutex
	cursors map[string]*domain.SyncCursor
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: map[string]*domain.SyncCursor{}}
}

func (m *memCursors) Get(_ context.Context, userID string) (*domain.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cursors[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

func (m *memCursors) Advance(_ context.Context, userID string, syncedAt time.Time, lastRecordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.cursors[userID]; ok && !syncedAt.After(cur.LastSyncedAt) {
		return nil
	}
	m.cursors[userID] = &domain.SyncCursor{
		UserID:       userID,
		LastSyncedAt: syncedAt,
		LastRecordID: lastRecordID,
		UpdatedAt:    time.Now(),
	}
	return nil
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]*domain.HealthRecord
	upserts int
}

func newMemRecords() *memRecords {
	return &memRecords{records: map[string]*domain.HealthRecord{}}
}

func (m *memRecords) Upsert(_ context.Context, record *domain.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.Key()] = &cp
	m.upserts++
	return nil
}

func (m *memRecords) Recent(_ context.Context, userID string, limit int) ([]*domain.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HealthRecord
	for _, r := range m.records {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecords) ForDay(_ context.Context, userID string, day time.Time) ([]*domain.HealthRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HealthRecord
	for _, r := range m.records {
		if r.UserID == userID && !r.RecordedAt.Before(start) && r.RecordedAt.Before(end) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memDispatches struct {
	mu      sync.Mutex
	records map[string]*domain.DispatchRecord
}

func newMemDispatches() *memDispatches {
	return &memDispatches{records: map[string]*domain.DispatchRecord{}}
}

func (m *memDispatches) Get(_ context.Context, triggerID string) (*domain.DispatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[triggerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memDispatches) Record(_ context.Context, record *domain.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.TriggerID] = &cp
	return nil
}

type memStates struct {
	mu     sync.Mutex
	states map[string]string
}

func newMemStates() *memStates {
	return &memStates{states: map[string]string{}}
}

func (m *memStates) Create(_ context.Context, state, telegramID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = telegramID
	return nil
}

func (m *memStates) Consume(_ context.Context, state string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.states[state]
	if !ok {
		return "", repository.ErrStateConsumed
	}
	delete(m.states, state)
	return id, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.UserProfile
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*domain.UserProfile{}}
}

func (m *memUsers) Get(_ context.Context, telegramID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Ensure(_ context.Context, telegramID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &domain.UserProfile{TelegramID: telegramID, QuizAnswers: map[string]string{}}
	m.users[telegramID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetManifesto(_ context.Context, telegramID, manifesto string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Manifesto = manifesto
	return nil
}

func (m *memUsers) SetQuizAnswer(_ context.Context, telegramID, questionID, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrNotFound
	}
	u.QuizAnswers[questionID] = answer
	return nil
}

func (m *memUsers) SetLinked(_ context.Context, telegramID string, linked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Linked = linked
	return nil
}

func (m *memUsers) ListLinked(_ context.Context) ([]*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.UserProfile
	for _, u := range m.users {
		if u.Linked {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

// Collaborator fakes.

type fakeOAuth struct {
	mu           sync.Mutex
	refreshCalls int
	refreshFn    func(refreshToken string) (*whoop.Token, error)
	exchangeFn   func(code string) (*whoop.Token, error)
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*whoop.Token, error) {
	if f.exchangeFn != nil {
		return f.exchangeFn(code)
	}
	return nil, fmt.Errorf("exchange not configured")
}

func (f *fakeOAuth) Refresh(_ context.Context, refreshToken string) (*whoop.Token, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refreshFn(refreshToken)
}

func (f *fakeOAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, accessToken string, since time.Time, nextToken string) (*whoop.SleepPage, error)
}

func (f *fakeFetcher) Sleeps(_ context.Context, accessToken string, since time.Time, nextToken string) (*whoop.SleepPage, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, accessToken, since, nextToken)
}

type sentMessage struct {
	ChatID string
	Text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fn   func(chatID, text string) (int64, error)
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) (int64, error) {
	if f.fn != nil {
		if _, err := f.fn(chatID, text); err != nil {
			return 0, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return int64(len(f.sent)), nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeCompleter struct {
	fn func(system, prompt string) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	return f.fn(system, prompt)
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[int64]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: map[int64]bool{}}
}

func (f *fakeDedup) Claim(_ context.Context, updateID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[updateID] {
		return false, nil
	}
	f.seen[updateID] = true
	return true, nil
}
