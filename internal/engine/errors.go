package engine

import "fmt"

// ValidationError reports bad input on a mutating operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PreconditionError reports a state-machine transition attempted from an
// illegal state, or by the wrong actor.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e PreconditionError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
