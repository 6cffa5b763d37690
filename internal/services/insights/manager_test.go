package insights

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/ai/aitest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinance struct {
	database.FinanceReader
	count int
	since time.Time
}

func (f *fakeFinance) CountTransactionsSince(_ context.Context, _ uuid.UUID, since time.Time) (int, error) {
	f.since = since
	return f.count, nil
}

type fakeBuilder struct {
	calls int
	err   error
}

func (b *fakeBuilder) Build(_ context.Context, _ uuid.UUID) (*models.FinancialSummary, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &models.FinancialSummary{Expenses: models.ExpenseSummary{Total: 1234.5}}, nil
}

// memoryStore keeps every generation and treats entries without InvalidatedAt as active
type memoryStore struct {
	mu       sync.Mutex
	entries  []*models.InsightCacheEntry
	replaces int
}

func (s *memoryStore) GetActive(_ context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.InsightCacheEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.IsActive() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *memoryStore) LatestGeneratedAt(context.Context, uuid.UUID) (*time.Time, error) {
	return nil, nil
}

func (s *memoryStore) ReplaceActive(_ context.Context, userID uuid.UUID, entries []*models.InsightCacheEntry, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	for _, e := range s.entries {
		if e.UserID == userID && e.IsActive() {
			at := now
			e.InvalidatedAt = &at
		}
	}
	for _, e := range entries {
		e.ID = uuid.New()
		e.UserID = userID
		e.GeneratedAt = now
		s.entries = append(s.entries, e)
	}
	return nil
}

const validAnswer = `{"insights":[
 {"category":"spending","title":"Dining is up","body":"Dining rose 20% to $450.","priority":2},
 {"category":"savings","title":"Build a buffer","body":"Your savings cover 1.5 months.","priority":1},
 {"category":"debt","title":"Card balance","body":"Your card carries $1,500.","priority":3}
]}`

func newTestManager(count int, provider *aitest.Provider) (*Manager, *memoryStore, *fakeBuilder, *fakeFinance) {
	finance := &fakeFinance{count: count}
	store := &memoryStore{}
	builder := &fakeBuilder{}
	m := NewManager(finance, store, builder, provider, nil)
	m.now = func() time.Time { return time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC) }
	return m, store, builder, finance
}

func TestManager_Regenerate_InsufficientData(t *testing.T) {
	t.Parallel()

	provider := &aitest.Provider{Response: validAnswer}
	m, store, builder, finance := newTestManager(MinRecentTransactions-1, provider)

	got, err := m.Regenerate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, store.replaces)
	assert.Zero(t, builder.calls)
	assert.Empty(t, provider.Requests())
	assert.Equal(t, time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC), finance.since)
}

func TestManager_Regenerate_ReplacesActiveGeneration(t *testing.T) {
	t.Parallel()

	provider := &aitest.Provider{Response: validAnswer}
	m, store, _, _ := newTestManager(MinRecentTransactions, provider)
	userID := uuid.New()

	first, err := m.Regenerate(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, first[0].Priority)
	assert.Equal(t, models.InsightCategorySavings, first[0].Category)
	assert.JSONEq(t, `1234.5`, string(extractTotal(t, first[0].Snapshot)))

	second, err := m.Regenerate(context.Background(), userID)
	require.NoError(t, err)

	active, err := m.GetActive(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, active, 3)
	for i := range active {
		assert.Equal(t, second[i].ID, active[i].ID)
	}
	for _, e := range first {
		assert.False(t, e.IsActive(), "first generation should be invalidated")
	}
	assert.Equal(t, 2, store.replaces)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].JSON)
	assert.Contains(t, reqs[0].Messages[0].Content, "1234.5")
}

func extractTotal(t *testing.T, snapshot []byte) []byte {
	t.Helper()
	var doc struct {
		Expenses struct {
			Total json.RawMessage `json:"total"`
		} `json:"expenses"`
	}
	require.NoError(t, json.Unmarshal(snapshot, &doc))
	return doc.Expenses.Total
}

func TestManager_Regenerate_ModelFailureSurfaces(t *testing.T) {
	t.Parallel()

	provider := &aitest.Provider{Err: errors.New("upstream unavailable")}
	m, store, _, _ := newTestManager(50, provider)

	_, err := m.Regenerate(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Zero(t, store.replaces)
}

func TestManager_Regenerate_InvalidOutputDegrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		answer string
	}{
		{name: "not json", answer: "I could not analyse this user."},
		{name: "too few insights", answer: `{"insights":[{"category":"spending","title":"a","body":"b","priority":1}]}`},
		{name: "unknown category", answer: `{"insights":[
			{"category":"crypto","title":"a","body":"b","priority":1},
			{"category":"spending","title":"a","body":"b","priority":2},
			{"category":"spending","title":"a","body":"b","priority":3}]}`},
		{name: "blank title", answer: `{"insights":[
			{"category":"spending","title":"  ","body":"b","priority":1},
			{"category":"spending","title":"a","body":"b","priority":2},
			{"category":"spending","title":"a","body":"b","priority":3}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, store, _, _ := newTestManager(50, &aitest.Provider{Response: tt.answer})

			got, err := m.Regenerate(context.Background(), uuid.New())
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Zero(t, store.replaces)
		})
	}
}

func TestManager_Regenerate_SummaryFailure(t *testing.T) {
	t.Parallel()

	provider := &aitest.Provider{Response: validAnswer}
	m, store, builder, _ := newTestManager(50, provider)
	builder.err = errors.New("db down")

	_, err := m.Regenerate(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Zero(t, store.replaces)
	assert.Empty(t, provider.Requests())
}

func TestManager_GetActive_Empty(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newTestManager(0, &aitest.Provider{})
	got, err := m.GetActive(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
