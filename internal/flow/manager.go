package flow

import "time"

// DefaultMaxHistorySize bounds the undo stack when no option overrides it.
const DefaultMaxHistorySize = 20

// HistoryEntry is a snapshot taken just before a state change.
type HistoryEntry struct {
	State     State          `json:"state"`
	Context   map[string]any `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e HistoryEntry) clone() HistoryEntry {
	return HistoryEntry{State: e.State, Context: cloneContext(e.Context), Timestamp: e.Timestamp}
}

// Manager owns the state, context and undo history of one wizard session.
// It is not safe for concurrent use.
type Manager struct {
	state      State
	context    map[string]any
	history    []HistoryEntry
	maxHistory int
	completed  bool
	cancelled  bool
	now        func() time.Time
}

type options struct {
	initialState   State
	initialContext map[string]any
	maxHistory     int
	now            func() time.Time
}

// Option configures a Manager.
type Option func(*options)

func WithInitialState(state State) Option {
	return func(o *options) { o.initialState = state }
}

func WithInitialContext(data map[string]any) Option {
	return func(o *options) { o.initialContext = data }
}

// WithMaxHistorySize caps the undo stack. Values below 1 are clamped to 1.
func WithMaxHistorySize(size int) Option {
	return func(o *options) { o.maxHistory = size }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds a Manager at the initial state, or the state given by
// WithInitialState.
func New(opts ...Option) (*Manager, error) {
	cfg := options{
		initialState: InitialState,
		maxHistory:   DefaultMaxHistorySize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.initialState == "" {
		cfg.initialState = InitialState
	}
	if !cfg.initialState.Valid() {
		return nil, newError(ErrInvalidState, "Invalid initial state: %s", cfg.initialState)
	}
	if cfg.maxHistory < 1 {
		cfg.maxHistory = 1
	}
	m := &Manager{
		state:      cfg.initialState,
		context:    cloneContext(cfg.initialContext),
		history:    []HistoryEntry{},
		maxHistory: cfg.maxHistory,
		now:        cfg.now,
	}
	m.syncFlags()
	return m, nil
}

func (m *Manager) CurrentState() State { return m.state }

// Context returns a deep copy of the accumulated context.
func (m *Manager) Context() map[string]any { return cloneContext(m.context) }

// Value returns a copy of a single context value.
func (m *Manager) Value(key string) (any, bool) {
	v, ok := m.context[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// History returns the undo stack oldest first. The result is a copy.
func (m *Manager) History() []HistoryEntry {
	out := make([]HistoryEntry, len(m.history))
	for i, entry := range m.history {
		out[i] = entry.clone()
	}
	return out
}

func (m *Manager) MaxHistorySize() int { return m.maxHistory }
func (m *Manager) IsCompleted() bool   { return m.completed }
func (m *Manager) IsCancelled() bool   { return m.cancelled }
func (m *Manager) IsTerminal() bool    { return m.state.Terminal() }

// ValidTransitions lists the states reachable from the current one.
func (m *Manager) ValidTransitions() []State { return Transitions(m.state) }

// UpdateContext accepts either a key and a value, or a single
// map[string]any to merge. History is untouched.
func (m *Manager) UpdateContext(data any, value ...any) error {
	switch v := data.(type) {
	case string:
		if len(value) != 1 {
			return newError(ErrInvalidContextUpdate, "Invalid context update: key %q needs exactly one value", v)
		}
		m.context[v] = cloneValue(value[0])
		return nil
	case map[string]any:
		if len(value) != 0 {
			return newError(ErrInvalidContextUpdate, "Invalid context update: unexpected value after map")
		}
		mergeInto(m.context, v)
		return nil
	default:
		return newError(ErrInvalidContextUpdate, "Invalid context update: unsupported argument %T", data)
	}
}

func (m *Manager) Set(key string, value any) {
	m.context[key] = cloneValue(value)
}

func (m *Manager) Merge(data map[string]any) {
	mergeInto(m.context, data)
}

// Transition moves to next after recording the current state and context.
// data, when non-nil, is merged into the context after the move.
func (m *Manager) Transition(next State, data map[string]any) error {
	if !next.Valid() {
		return newError(ErrInvalidState, "Invalid target state: %s", next)
	}
	if m.state.Terminal() {
		return newError(ErrInvalidTransition, "Cannot transition from terminal state %s", m.state)
	}
	if !CanTransition(m.state, next) {
		return newError(ErrInvalidTransition, "Invalid transition from %s to %s", m.state, next)
	}
	m.push()
	m.state = next
	mergeInto(m.context, data)
	m.syncFlags()
	return nil
}

// Back restores the newest history entry. It reports false, changing
// nothing, when the history is empty or the flow has ended.
func (m *Manager) Back() bool {
	if len(m.history) == 0 || m.state.Terminal() {
		return false
	}
	last := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	m.state = last.State
	m.context = cloneContext(last.Context)
	m.completed = false
	m.cancelled = false
	return true
}

func (m *Manager) Cancel() error {
	if m.cancelled {
		return newError(ErrIllegalLifecycle, "Flow is already cancelled")
	}
	if m.completed {
		return newError(ErrIllegalLifecycle, "Cannot cancel a completed flow")
	}
	m.push()
	m.state = StateCancelled
	m.syncFlags()
	return nil
}

func (m *Manager) Complete() error {
	if m.completed {
		return newError(ErrIllegalLifecycle, "Flow is already completed")
	}
	if m.cancelled {
		return newError(ErrIllegalLifecycle, "Cannot complete a cancelled flow")
	}
	m.push()
	m.state = StateDone
	m.syncFlags()
	return nil
}

// Reset clears history and flags and starts over at state (the initial
// state when empty) with a copy of data.
func (m *Manager) Reset(state State, data map[string]any) error {
	if state == "" {
		state = InitialState
	}
	if !state.Valid() {
		return newError(ErrInvalidState, "Invalid state: %s", state)
	}
	m.state = state
	m.context = cloneContext(data)
	m.history = []HistoryEntry{}
	m.syncFlags()
	return nil
}

func (m *Manager) push() {
	m.history = append(m.history, HistoryEntry{
		State:     m.state,
		Context:   cloneContext(m.context),
		Timestamp: m.now().UTC(),
	})
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append([]HistoryEntry{}, m.history[over:]...)
	}
}

func (m *Manager) syncFlags() {
	m.completed = m.state == StateDone
	m.cancelled = m.state == StateCancelled
}
