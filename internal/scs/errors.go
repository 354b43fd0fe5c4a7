package scs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is returned for malformed engine input.
	ErrInvalidInput = errors.New("scs: invalid input")
	// ErrComplexityExceeded is matched by every *ComplexityError.
	ErrComplexityExceeded = errors.New("scs: complexity budget exceeded")
)

// ComplexityError reports a search aborted because it went over its Budget.
type ComplexityError struct {
	States    int
	MaxStates int
	Elapsed   time.Duration
	Timeout   time.Duration
	Sequences int
}

func (e *ComplexityError) Error() string {
	if e.Timeout > 0 && e.Elapsed >= e.Timeout {
		return fmt.Sprintf("scs: timeout %s exceeded after %d states (%d sequences)", e.Timeout, e.States, e.Sequences)
	}
	return fmt.Sprintf("scs: state limit %d exceeded (%d sequences, %s elapsed)", e.MaxStates, e.Sequences, e.Elapsed)
}

func (e *ComplexityError) Is(target error) bool { return target == ErrComplexityExceeded }
