// Package workflow defines the state-machine capability interface that gates
// ethics application lifecycle transitions, plus the default implementation
// backed by looplab/fsm. Application state is persisted through a StateStore
// so the engine itself stays stateless.
package workflow

import (
	"context"
	"errors"
)

type State string

const (
	StateWithResearcher   State = "with_researcher"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproved         State = "approved"
	StateRejected         State = "rejected"
)

type Transition string

const (
	TransitionSubmitForReview Transition = "submit_for_review"
	TransitionApprove         Transition = "approve"
	TransitionReject          Transition = "reject"
)

var (
	// ErrNotEnrolled is returned when an application was never enrolled in
	// the workflow.
	ErrNotEnrolled = errors.New("application not enrolled in workflow")
	// ErrTransitionNotAllowed is returned when the requested transition is
	// not permitted from the application's current state.
	ErrTransitionNotAllowed = errors.New("transition not allowed from current state")
)

// Engine is the workflow capability consumed by the lifecycle service.
type Engine interface {
	// Enroll registers a new application at the initial state.
	Enroll(ctx context.Context, applicationID int64) error
	CurrentState(ctx context.Context, applicationID int64) (State, error)
	CanTransition(ctx context.Context, applicationID int64, t Transition) (bool, error)
	// Transition applies t or returns ErrTransitionNotAllowed.
	Transition(ctx context.Context, applicationID int64, t Transition) error
}

// StateStore persists the workflow state per application. An empty state
// means the application is not enrolled.
type StateStore interface {
	WorkflowState(ctx context.Context, applicationID int64) (string, error)
	SetWorkflowState(ctx context.Context, applicationID int64, state string) error
}
