package pipeline

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/teranos/civicload/errors"
)

// State is where a dataset is in the pipeline
type State string

const (
	StatePending    State = "PENDING"
	StateAcquired   State = "ACQUIRED"
	StateNormalized State = "NORMALIZED"
	StateValidated  State = "VALIDATED"
	StateLoaded     State = "LOADED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool { return s == StateLoaded || s == StateFailed }

// Stage names the unit of work between two states
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageNormalize Stage = "normalize"
	StageValidate  Stage = "validate"
	StageLoad      Stage = "load"
)

const (
	triggerAcquired   = "acquired"
	triggerNormalized = "normalized"
	triggerValidated  = "validated"
	triggerLoaded     = "loaded"
	triggerFail       = "fail"
)

// StageError tags a failure with the stage that produced it and its kind
type StageError struct {
	Stage Stage
	Kind  errors.Kind
	Err   error
}

func newStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: errors.KindOf(err), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// newMachine builds the per-dataset state machine. Every non-terminal state
// may fail; terminal states accept no triggers.
func newMachine(onTransition func(context.Context, stateless.Transition)) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StatePending)

	sm.Configure(StatePending).
		Permit(triggerAcquired, StateAcquired).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateAcquired).
		Permit(triggerNormalized, StateNormalized).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateNormalized).
		Permit(triggerValidated, StateValidated).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateValidated).
		Permit(triggerLoaded, StateLoaded).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateLoaded)
	sm.Configure(StateFailed)

	if onTransition != nil {
		sm.OnTransitioned(onTransition)
	}
	return sm
}
