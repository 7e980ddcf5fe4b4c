package flow

import (
	"context"
	"io"
	"log/slog"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeForward OutcomeKind = iota
	OutcomeBack
	OutcomeCancel
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeForward:
		return "forward"
	case OutcomeBack:
		return "back"
	case OutcomeCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Outcome is what a step handler decided. Next and Delta only apply to
// forward outcomes.
type Outcome struct {
	Kind  OutcomeKind
	Next  State
	Delta map[string]any
}

func Forward(next State, delta map[string]any) Outcome {
	return Outcome{Kind: OutcomeForward, Next: next, Delta: delta}
}

func Back() Outcome { return Outcome{Kind: OutcomeBack} }

func Cancel() Outcome { return Outcome{Kind: OutcomeCancel} }

// Handler runs one step. data is a copy of the flow context and may be
// modified freely.
type Handler interface {
	Handle(ctx context.Context, data map[string]any) (Outcome, error)
}

type HandlerFunc func(ctx context.Context, data map[string]any) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, data map[string]any) (Outcome, error) {
	return f(ctx, data)
}

// CheckpointFunc receives the snapshot after every applied outcome.
type CheckpointFunc func(ctx context.Context, snap Snapshot) error

// Result is the final state of a controller run.
type Result struct {
	State     State
	Context   map[string]any
	Completed bool
	Cancelled bool
	Steps     int
}

type Controller struct {
	manager    *Manager
	handlers   map[State]Handler
	logger     *slog.Logger
	checkpoint CheckpointFunc
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCheckpoint(fn CheckpointFunc) ControllerOption {
	return func(c *Controller) { c.checkpoint = fn }
}

func NewController(manager *Manager, handlers map[State]Handler, opts ...ControllerOption) *Controller {
	c := &Controller{
		manager:  manager,
		handlers: make(map[State]Handler, len(handlers)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for state, handler := range handlers {
		c.handlers[state] = handler
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Manager() *Manager { return c.manager }

// Run drives the manager until it reaches a terminal state. A handler error
// stops the loop and is returned as-is; the step that failed is not applied.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	steps := 0
	for !c.manager.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return c.result(steps), err
		}
		state := c.manager.CurrentState()
		handler, ok := c.handlers[state]
		if !ok || handler == nil {
			return c.result(steps), newError(ErrMissingHandler, "No handler registered for state %s", state)
		}
		outcome, err := handler.Handle(ctx, c.manager.Context())
		if err != nil {
			return c.result(steps), err
		}
		if err := c.apply(outcome); err != nil {
			return c.result(steps), err
		}
		steps++
		c.logger.Debug("flow step", "from", state, "outcome", outcome.Kind.String(), "to", c.manager.CurrentState())
		if c.checkpoint != nil {
			if err := c.checkpoint(ctx, c.manager.Serialize()); err != nil {
				return c.result(steps), err
			}
		}
	}
	return c.result(steps), nil
}

func (c *Controller) apply(outcome Outcome) error {
	switch outcome.Kind {
	case OutcomeForward:
		if outcome.Next.Terminal() && !CanTransition(c.manager.CurrentState(), outcome.Next) {
			return newError(ErrInvalidTransition, "Invalid transition from %s to %s", c.manager.CurrentState(), outcome.Next)
		}
		switch outcome.Next {
		case StateDone:
			c.manager.Merge(outcome.Delta)
			return c.manager.Complete()
		case StateCancelled:
			c.manager.Merge(outcome.Delta)
			return c.manager.Cancel()
		default:
			return c.manager.Transition(outcome.Next, outcome.Delta)
		}
	case OutcomeBack:
		if c.manager.Back() {
			return nil
		}
		return c.manager.Cancel()
	case OutcomeCancel:
		return c.manager.Cancel()
	default:
		return newError(ErrInvalidTransition, "Unknown outcome kind %d", int(outcome.Kind))
	}
}

func (c *Controller) result(steps int) Result {
	return Result{
		State:     c.manager.CurrentState(),
		Context:   c.manager.Context(),
		Completed: c.manager.IsCompleted(),
		Cancelled: c.manager.IsCancelled(),
		Steps:     steps,
	}
}
