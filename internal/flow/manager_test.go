package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := New(append([]Option{WithClock(fixedClock())}, opts...)...)
	require.NoError(t, err)
	return m
}

func TestNewDefaults(t *testing.T) {
	m := newManager(t)
	assert.Equal(t, StateSelectCollection, m.CurrentState())
	assert.Empty(t, m.Context())
	assert.Empty(t, m.History())
	assert.Equal(t, DefaultMaxHistorySize, m.MaxHistorySize())
	assert.False(t, m.IsTerminal())
	assert.False(t, m.IsCompleted())
	assert.False(t, m.IsCancelled())
}

func TestNewRejectsUnknownInitialState(t *testing.T) {
	_, err := New(WithInitialState("bogus"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "Invalid initial state: bogus", err.Error())
}

func TestNewClampsMaxHistory(t *testing.T) {
	for _, size := range []int{0, -3} {
		m := newManager(t, WithMaxHistorySize(size))
		assert.Equal(t, 1, m.MaxHistorySize())
	}
}

func TestNewAtTerminalStateDerivesFlags(t *testing.T) {
	m := newManager(t, WithInitialState(StateDone))
	assert.True(t, m.IsCompleted())
	assert.False(t, m.IsCancelled())
	assert.True(t, m.IsTerminal())
}

func TestInitialContextIsCopied(t *testing.T) {
	seed := map[string]any{"nested": map[string]any{"a": 1}}
	m := newManager(t, WithInitialContext(seed))
	seed["nested"].(map[string]any)["a"] = 2
	v, ok := m.Value("nested")
	require.True(t, ok)
	assert.Equal(t, 1, v.(map[string]any)["a"])
}

func TestEveryTableEdgeIsAccepted(t *testing.T) {
	for _, from := range States() {
		for _, to := range Transitions(from) {
			m := newManager(t, WithInitialState(from))
			require.NoError(t, m.Transition(to, nil), "%s -> %s", from, to)
			assert.Equal(t, to, m.CurrentState())
			assert.Len(t, m.History(), 1)
		}
	}
}

func TestEveryNonEdgeIsRejected(t *testing.T) {
	for _, from := range States() {
		for _, to := range States() {
			if CanTransition(from, to) {
				continue
			}
			m := newManager(t, WithInitialState(from), WithInitialContext(map[string]any{"k": "v"}))
			err := m.Transition(to, map[string]any{"x": 1})
			require.Error(t, err, "%s -> %s", from, to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, from, m.CurrentState())
			assert.Equal(t, map[string]any{"k": "v"}, m.Context())
			assert.Empty(t, m.History())
		}
	}
}

func TestTransitionToUnknownState(t *testing.T) {
	m := newManager(t)
	err := m.Transition("nowhere", nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	done := newManager(t, WithInitialState(StateDone))
	err = done.Transition("nowhere", nil)
	assert.ErrorIs(t, err, ErrInvalidState, "unknown target is reported before terminal")
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, terminal := range []State{StateDone, StateCancelled} {
		m := newManager(t, WithInitialState(terminal))
		for _, to := range States() {
			assert.ErrorIs(t, m.Transition(to, nil), ErrInvalidTransition)
		}
		assert.False(t, m.Back())
		assert.Empty(t, m.ValidTransitions())
		assert.Equal(t, terminal, m.CurrentState())
	}
}

func TestTransitionMergesData(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Transition(StateSelectNFT, map[string]any{"collection": "col123"}))
	require.NoError(t, m.Transition(StateSelectPricingMethod, map[string]any{"tokenId": "nft456"}))
	assert.Equal(t, map[string]any{"collection": "col123", "tokenId": "nft456"}, m.Context())
}

func TestBackRestoresExactContext(t *testing.T) {
	m := newManager(t, WithInitialContext(map[string]any{"seed": true}))
	require.NoError(t, m.Transition(StateSelectNFT, map[string]any{"collection": "col123"}))
	m.Set("extra", "later")

	require.True(t, m.Back())
	assert.Equal(t, StateSelectCollection, m.CurrentState())
	assert.Equal(t, map[string]any{"seed": true}, m.Context(), "back replaces the context")
	assert.False(t, m.Back())
}

func TestBackRepeatedUnwindsInOrder(t *testing.T) {
	m := newManager(t)
	path := []State{StateSelectNFT, StateSelectPricingMethod, StateInputPricingValue, StateConfirm}
	for i, s := range path {
		require.NoError(t, m.Transition(s, map[string]any{string(s): i}))
	}
	expected := append([]State{StateSelectCollection}, path[:len(path)-1]...)
	for i := len(expected) - 1; i >= 0; i-- {
		require.True(t, m.Back())
		assert.Equal(t, expected[i], m.CurrentState())
		assert.Len(t, m.Context(), i)
	}
	assert.False(t, m.Back())
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	m := newManager(t, WithMaxHistorySize(2))
	require.NoError(t, m.Transition(StateSelectNFT, nil))
	require.NoError(t, m.Transition(StateSelectPricingMethod, nil))
	require.NoError(t, m.Transition(StateInputPricingValue, nil))

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, StateSelectNFT, history[0].State)
	assert.Equal(t, StateSelectPricingMethod, history[1].State)

	require.True(t, m.Back())
	require.True(t, m.Back())
	assert.Equal(t, StateSelectNFT, m.CurrentState())
	assert.False(t, m.Back())
}

func TestHistoryCapOfOne(t *testing.T) {
	m := newManager(t, WithMaxHistorySize(0))
	require.NoError(t, m.Transition(StateSelectNFT, nil))
	require.NoError(t, m.Transition(StateSelectPricingMethod, nil))
	assert.Len(t, m.History(), 1)
}

func TestHistoryEntriesAreSnapshots(t *testing.T) {
	m := newManager(t, WithInitialContext(map[string]any{"list": []any{"a"}}))
	require.NoError(t, m.Transition(StateSelectNFT, nil))

	history := m.History()
	history[0].Context["list"].([]any)[0] = "mutated"
	m.Set("list", []any{"b"})

	again := m.History()
	assert.Equal(t, []any{"a"}, again[0].Context["list"])
	assert.False(t, again[0].Timestamp.IsZero())
	assert.Equal(t, time.UTC, again[0].Timestamp.Location())
}

func TestContextAccessorsReturnCopies(t *testing.T) {
	m := newManager(t)
	m.Set("nested", map[string]any{"a": "b"})
	got := m.Context()
	got["nested"].(map[string]any)["a"] = "changed"
	got["new"] = true

	v, ok := m.Value("nested")
	require.True(t, ok)
	assert.Equal(t, "b", v.(map[string]any)["a"])
	_, ok = m.Value("new")
	assert.False(t, ok)
}

func TestUpdateContextShapes(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.UpdateContext("a", 1))
	require.NoError(t, m.UpdateContext(map[string]any{"b": 2, "a": 3}))
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, m.Context())
	assert.Empty(t, m.History())

	for _, bad := range []struct {
		data  any
		value []any
	}{
		{data: 42},
		{data: "only-key"},
		{data: "k", value: []any{1, 2}},
		{data: []string{"a"}},
		{data: map[string]any{"a": 1}, value: []any{"stray"}},
	} {
		err := m.UpdateContext(bad.data, bad.value...)
		assert.ErrorIs(t, err, ErrInvalidContextUpdate, "%#v", bad)
	}
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, m.Context())
}

func TestCancelGuards(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Cancel())
	assert.True(t, m.IsCancelled())
	assert.False(t, m.IsCompleted())
	assert.Len(t, m.History(), 1)

	err := m.Cancel()
	assert.ErrorIs(t, err, ErrIllegalLifecycle)
	assert.Contains(t, err.Error(), "already cancelled")

	err = m.Complete()
	assert.ErrorIs(t, err, ErrIllegalLifecycle)
	assert.Contains(t, err.Error(), "Cannot complete a cancelled flow")
}

func TestCompleteGuards(t *testing.T) {
	m := newManager(t, WithInitialState(StateConfirm))
	require.NoError(t, m.Complete())
	assert.True(t, m.IsCompleted())
	assert.Equal(t, StateDone, m.CurrentState())

	err := m.Complete()
	assert.ErrorIs(t, err, ErrIllegalLifecycle)
	assert.Contains(t, err.Error(), "already completed")

	err = m.Cancel()
	assert.ErrorIs(t, err, ErrIllegalLifecycle)
	assert.Contains(t, err.Error(), "Cannot cancel a completed flow")
}

func TestCancelRespectsHistoryCap(t *testing.T) {
	m := newManager(t, WithMaxHistorySize(1))
	require.NoError(t, m.Transition(StateSelectNFT, nil))
	require.NoError(t, m.Cancel())
	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, StateSelectNFT, history[0].State)
}

func TestReset(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Transition(StateSelectNFT, map[string]any{"a": 1}))
	require.NoError(t, m.Cancel())

	require.NoError(t, m.Reset("", map[string]any{"b": 2}))
	assert.Equal(t, StateSelectCollection, m.CurrentState())
	assert.Equal(t, map[string]any{"b": 2}, m.Context())
	assert.Empty(t, m.History())
	assert.False(t, m.IsCancelled())

	require.NoError(t, m.Reset(StateDone, nil))
	assert.True(t, m.IsCompleted())

	err := m.Reset("bogus", nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateDone, m.CurrentState())
}

func TestListingScenarioEndToEnd(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Transition(StateSelectNFT, map[string]any{"collection": "col123"}))
	require.NoError(t, m.Transition(StateSelectPricingMethod, map[string]any{"tokenId": "nft456"}))
	require.NoError(t, m.Transition(StateInputPricingValue, map[string]any{"pricingMethod": "fixed"}))
	require.NoError(t, m.Transition(StateConfirm, map[string]any{"pricingValue": "1.5"}))
	require.NoError(t, m.Transition(StateDone, nil))

	assert.True(t, m.IsCompleted())
	assert.Equal(t, map[string]any{
		"collection":    "col123",
		"tokenId":       "nft456",
		"pricingMethod": "fixed",
		"pricingValue":  "1.5",
	}, m.Context())
	assert.Len(t, m.History(), 5)
}
