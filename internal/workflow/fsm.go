package workflow

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// FSMEngine implements Engine on looplab/fsm. A throwaway machine is built
// per call seeded with the stored state; only the resulting state is kept.
type FSMEngine struct {
	name   string
	store  StateStore
	logger *zap.Logger
}

func NewFSMEngine(name string, store StateStore, logger *zap.Logger) *FSMEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSMEngine{name: name, store: store, logger: logger}
}

func (e *FSMEngine) machine(current State) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: string(TransitionSubmitForReview), Src: []string{string(StateWithResearcher)}, Dst: string(StateAwaitingApproval)},
			{Name: string(TransitionApprove), Src: []string{string(StateAwaitingApproval)}, Dst: string(StateApproved)},
			{Name: string(TransitionReject), Src: []string{string(StateAwaitingApproval)}, Dst: string(StateRejected)},
		},
		fsm.Callbacks{},
	)
}

func (e *FSMEngine) Enroll(ctx context.Context, applicationID int64) error {
	current, err := e.store.WorkflowState(ctx, applicationID)
	if err != nil {
		return err
	}
	if current != "" {
		return fmt.Errorf("application %d already enrolled in %s at state %s", applicationID, e.name, current)
	}
	if err := e.store.SetWorkflowState(ctx, applicationID, string(StateWithResearcher)); err != nil {
		return err
	}
	e.logger.Info("application enrolled in workflow",
		zap.String("workflow", e.name),
		zap.Int64("application_id", applicationID),
		zap.String("state", string(StateWithResearcher)))
	return nil
}

func (e *FSMEngine) CurrentState(ctx context.Context, applicationID int64) (State, error) {
	current, err := e.store.WorkflowState(ctx, applicationID)
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", ErrNotEnrolled
	}
	return State(current), nil
}

func (e *FSMEngine) CanTransition(ctx context.Context, applicationID int64, t Transition) (bool, error) {
	current, err := e.CurrentState(ctx, applicationID)
	if err != nil {
		return false, err
	}
	return e.machine(current).Can(string(t)), nil
}

func (e *FSMEngine) Transition(ctx context.Context, applicationID int64, t Transition) error {
	current, err := e.CurrentState(ctx, applicationID)
	if err != nil {
		return err
	}
	m := e.machine(current)
	if err := m.Event(ctx, string(t)); err != nil {
		return ErrTransitionNotAllowed
	}
	if err := e.store.SetWorkflowState(ctx, applicationID, m.Current()); err != nil {
		return err
	}
	e.logger.Info("workflow transition applied",
		zap.String("workflow", e.name),
		zap.Int64("application_id", applicationID),
		zap.String("transition", string(t)),
		zap.String("from", string(current)),
		zap.String("to", m.Current()))
	return nil
}
