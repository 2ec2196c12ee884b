package agent

import "fmt"

// State is a step of the orchestration loop.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingSkill State = "EXECUTING_SKILL"
	StateDone           State = "DONE"
)

var transitions = map[State][]State{
	StateAwaitingModel:  {StateExecutingSkill, StateDone},
	StateExecutingSkill: {StateAwaitingModel, StateDone},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func mustTransition(from, to State) State {
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("agent: illegal transition %s -> %s", from, to))
	}
	return to
}
