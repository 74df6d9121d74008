package session

import (
	"fmt"

	"patashala-backend/internal/models"
)

type State string

const (
	NotStarted     State = "not_started"
	AwaitingAnswer State = "awaiting_answer"
	Scored         State = "scored"
	Completed      State = "completed"
	Abandoned      State = "abandoned"
)

type Event string

const (
	EventStart    Event = "start"
	EventSubmit   Event = "submit"
	EventAdvance  Event = "advance"
	EventComplete Event = "complete"
	EventAbandon  Event = "abandon"
)

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[State]map[Event]State{
	NotStarted: {
		EventStart: AwaitingAnswer,
	},
	AwaitingAnswer: {
		EventSubmit:  Scored,
		EventAbandon: Abandoned,
	},
	Scored: {
		EventAdvance:  AwaitingAnswer,
		EventComplete: Completed,
		EventAbandon:  Abandoned,
	},
}

func (s State) Terminal() bool {
	return s == Completed || s == Abandoned
}

// Transition returns the state reached from s on e.
func Transition(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, &models.ConflictError{Message: fmt.Sprintf("cannot %s an attempt session that is %s", e, s)}
}
