package flow

// State is one step of the listing wizard.
type State string

const (
	StateSelectCollection    State = "select-collection"
	StateSelectNFT           State = "select-nft"
	StateSelectPricingMethod State = "select-pricing-method"
	StateInputPricingValue   State = "input-pricing-value"
	StateConfirm             State = "confirm"
	StateDone                State = "done"
	StateCancelled           State = "cancelled"
)

// InitialState is where a fresh flow starts.
const InitialState = StateSelectCollection

// transitions lists the legal targets for each state: forward first, then
// back, then cancel. Terminal states have no outgoing edges. Never mutated.
var transitions = map[State][]State{
	StateSelectCollection:    {StateSelectNFT, StateCancelled},
	StateSelectNFT:           {StateSelectPricingMethod, StateSelectCollection, StateCancelled},
	StateSelectPricingMethod: {StateInputPricingValue, StateSelectNFT, StateCancelled},
	StateInputPricingValue:   {StateConfirm, StateSelectPricingMethod, StateCancelled},
	StateConfirm:             {StateDone, StateInputPricingValue, StateCancelled},
	StateDone:                {},
	StateCancelled:           {},
}

var orderedStates = []State{
	StateSelectCollection,
	StateSelectNFT,
	StateSelectPricingMethod,
	StateInputPricingValue,
	StateConfirm,
	StateDone,
	StateCancelled,
}

// States returns every known state in flow order.
func States() []State {
	return append([]State(nil), orderedStates...)
}

// Valid reports whether s belongs to the closed state set.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s is done or cancelled.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

func (s State) String() string { return string(s) }

// ParseState converts a label into a State.
func ParseState(label string) (State, error) {
	s := State(label)
	if !s.Valid() {
		return "", newError(ErrInvalidState, "Invalid state: %s", label)
	}
	return s, nil
}

// Transitions returns a copy of the legal targets from s.
func Transitions(s State) []State {
	return append([]State{}, transitions[s]...)
}

// CanTransition reports whether the table has an edge from -> to.
func CanTransition(from, to State) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
