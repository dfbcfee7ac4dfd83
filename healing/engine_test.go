package healing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/healing"
	"github.com/driftline/browserpilot/model"
)

// memHealingStore is a minimal in-memory store.HealingHistoryStore double.
type memHealingStore struct {
	mu   sync.Mutex
	rows []model.HealingHistoryRow
}

func (s *memHealingStore) Append(_ context.Context, row model.HealingHistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *memHealingStore) Query(_ context.Context, originalSelector, pageURL string) ([]model.HealingHistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HealingHistoryRow
	for _, r := range s.rows {
		if r.OriginalSelector == originalSelector && r.PageURL == pageURL {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestEngine_Heal_ExactTextMatchWins(t *testing.T) {
	store := &memHealingStore{}
	engine := healing.NewEngine(store, nil)

	page := model.PageState{
		URL: "https://example.com/checkout",
		InteractiveElements: []model.InteractiveElement{
			{Tag: "button", Selector: "#submit-btn-v2", Text: "Place Order"},
			{Tag: "button", Selector: "#cancel", Text: "Cancel"},
		},
	}

	healed, err := engine.Heal(context.Background(), "#submit-btn", page, "Place Order", nil)
	require.NoError(t, err)
	require.NotNil(t, healed)
	assert.Equal(t, "#submit-btn-v2", healed.NewSelector)
	assert.Equal(t, model.StrategyTextContent, healed.Strategy)
	assert.Equal(t, 1.0, healed.Confidence)

	rows, err := store.Query(context.Background(), "#submit-btn", page.URL)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Succeeded)
	assert.Equal(t, "#submit-btn-v2", rows[0].HealedSelector)
}

func TestEngine_Heal_NoCandidateReturnsNilNotError(t *testing.T) {
	store := &memHealingStore{}
	engine := healing.NewEngine(store, nil)

	page := model.PageState{URL: "https://example.com/blank"}

	healed, err := engine.Heal(context.Background(), "#ghost", page, "", nil)
	require.NoError(t, err)
	assert.Nil(t, healed)

	rows, err := store.Query(context.Background(), "#ghost", page.URL)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Succeeded)
}

func TestEngine_Heal_BelowThresholdCandidatesAreDiscarded(t *testing.T) {
	store := &memHealingStore{}
	engine := healing.NewEngine(store, nil)

	page := model.PageState{
		URL: "https://example.com/form",
		InteractiveElements: []model.InteractiveElement{
			{Tag: "button", Selector: "#submit-v2", Text: "Something unrelated"},
		},
	}

	healed, err := engine.Heal(context.Background(), "#submit", page, "Place Order", nil)
	require.NoError(t, err)
	assert.Nil(t, healed)
}

func TestEngine_Heal_NilStoreSkipsPersistence(t *testing.T) {
	engine := healing.NewEngine(nil, nil)
	page := model.PageState{
		InteractiveElements: []model.InteractiveElement{
			{Tag: "button", Selector: "#submit-v2", Text: "Place Order"},
		},
	}

	healed, err := engine.Heal(context.Background(), "#submit", page, "Place Order", nil)
	require.NoError(t, err)
	require.NotNil(t, healed)
	assert.Equal(t, "#submit-v2", healed.NewSelector)
}
