package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openethics/openethics/internal/events"
	"github.com/openethics/openethics/internal/permissions"
	"github.com/openethics/openethics/internal/workflow"
)

// ApplicationStore abstracts persistence operations required by
// ApplicationService.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id int64) (*EthicsApplication, error)
	CreateApplication(ctx context.Context, app *EthicsApplication) (*EthicsApplication, error)
	SaveApplication(ctx context.Context, app *EthicsApplication) error
	ActiveApplicationsForUser(ctx context.Context, userID int64) ([]EthicsApplication, error)
	QuestionnaireGroups(ctx context.Context, questionnaireID int64) ([]QuestionGroup, error)
	GetUser(ctx context.Context, id int64) (*User, error)
}

// ApplicationService orchestrates the ethics application lifecycle: creation
// with workflow enrollment and role assignment, readiness, submission with
// reviewer selection, and reviewer evaluation. The workflow engine,
// permission checker and event publisher are injected capabilities.
type ApplicationService struct {
	store   ApplicationStore
	answers *AnswerService
	review  *ReviewService
	engine  workflow.Engine
	perms   permissions.Checker
	roles   permissions.RoleAssigner
	pub     events.Publisher
	piRole  string
	revRole string
	logger  *zap.Logger
	now     func() time.Time
}

func NewApplicationService(
	store ApplicationStore,
	answers *AnswerService,
	review *ReviewService,
	engine workflow.Engine,
	perms permissions.Checker,
	roles permissions.RoleAssigner,
	pub events.Publisher,
	piRole, reviewerRole string,
	logger *zap.Logger,
) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		store:   store,
		answers: answers,
		review:  review,
		engine:  engine,
		perms:   perms,
		roles:   roles,
		pub:     pub,
		piRole:  piRole,
		revRole: reviewerRole,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new application with the given principal investigator,
// enrolls it in the workflow at the initial state, grants the investigator
// role and emits a created event.
func (s *ApplicationService) Create(ctx context.Context, title string, principalInvestigatorID int64) (*EthicsApplication, error) {
	if title == "" {
		return nil, NewInvalidError("title is required")
	}
	user, err := s.store.GetUser(ctx, principalInvestigatorID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewInvalidError(fmt.Sprintf("principal investigator %d does not exist", principalInvestigatorID))
	}
	app, err := s.store.CreateApplication(ctx, &EthicsApplication{
		Title:                   title,
		PrincipalInvestigatorID: principalInvestigatorID,
		Active:                  true,
		CreatedAt:               s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.engine.Enroll(ctx, app.ID); err != nil {
		return nil, err
	}
	if err := s.assignRole(ctx, app.ID, s.piRole, principalInvestigatorID, true); err != nil {
		return nil, err
	}
	s.emit(ctx, events.Event{Application: app.ID, Type: events.TypeCreated})
	return app, nil
}

// ActiveApplications lists the active applications a user is principal
// investigator of. An unknown user simply gets an empty list.
func (s *ApplicationService) ActiveApplications(ctx context.Context, userID int64) ([]EthicsApplication, error) {
	return s.store.ActiveApplicationsForUser(ctx, userID)
}

// Get returns an application the user is allowed to view.
func (s *ApplicationService) Get(ctx context.Context, applicationID, userID int64) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	ok, err := s.perms.HasPermission(ctx, app.ID, userID, permissions.CapabilityView)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewForbiddenError("no view permission for this application")
	}
	return app, nil
}

// ChangePrincipalInvestigator moves the application to a new investigator
// and reassigns the investigator role with replace semantics. Only an actor
// holding the submit capability (the current investigator) may hand the
// application over.
func (s *ApplicationService) ChangePrincipalInvestigator(ctx context.Context, applicationID, actorID, userID int64) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	if actorID == 0 {
		return nil, NewUnauthorizedError("authentication required")
	}
	ok, err := s.perms.HasPermission(ctx, app.ID, actorID, permissions.CapabilitySubmit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewForbiddenError("no submit permission for this application")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewInvalidError(fmt.Sprintf("user %d does not exist", userID))
	}
	app.PrincipalInvestigatorID = userID
	if err := s.store.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	if err := s.assignRole(ctx, app.ID, s.piRole, userID, true); err != nil {
		return nil, err
	}
	return app, nil
}

// IsReadyToSubmit reports whether both the checklist and the application form
// exist and every group in both has a complete answer set from the principal
// investigator.
func (s *ApplicationService) IsReadyToSubmit(ctx context.Context, app *EthicsApplication) (bool, error) {
	if app == nil || app.ChecklistID == nil || app.ApplicationFormID == nil {
		return false, nil
	}
	for _, qid := range []int64{*app.ChecklistID, *app.ApplicationFormID} {
		groups, err := s.store.QuestionnaireGroups(ctx, qid)
		if err != nil {
			return false, err
		}
		for _, g := range groups {
			complete, err := s.answers.IsComplete(ctx, app.PrincipalInvestigatorID, qid, g.ID)
			if err != nil {
				return false, err
			}
			if !complete {
				return false, nil
			}
		}
	}
	return true, nil
}

// SubmitForReview moves the application into review. The actor must be
// authenticated, hold the submit permission on the application, and the
// workflow must allow the transition; any of these failing surfaces as
// access-denied without invoking the transition. On success a reviewer is
// picked off the committee, assigned (additively) and a submitted event is
// emitted carrying the reviewer.
func (s *ApplicationService) SubmitForReview(ctx context.Context, applicationID, actorID int64) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	if actorID == 0 {
		return nil, NewUnauthorizedError("authentication required")
	}
	ok, err := s.perms.HasPermission(ctx, app.ID, actorID, permissions.CapabilitySubmit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewForbiddenError("no submit permission for this application")
	}
	allowed, err := s.engine.CanTransition(ctx, app.ID, workflow.TransitionSubmitForReview)
	if err != nil {
		return nil, s.mapWorkflowErr(err)
	}
	if !allowed {
		return nil, NewForbiddenError("submit_for_review is not allowed from the current state")
	}
	if err := s.engine.Transition(ctx, app.ID, workflow.TransitionSubmitForReview); err != nil {
		return nil, s.mapWorkflowErr(err)
	}

	reviewer, err := s.review.NextFreeReviewer(ctx)
	if err != nil {
		return nil, err
	}
	if reviewer == nil {
		// The transition stands; an empty committee is a deployment problem.
		s.logger.Error("no committee members available to review application",
			zap.Int64("application_id", app.ID))
		return nil, NewMisconfiguredError("no reviewers available")
	}
	if err := s.assignRole(ctx, app.ID, s.revRole, reviewer.UserID, false); err != nil {
		return nil, err
	}
	if err := s.review.RecordAssignment(ctx, reviewer.ID); err != nil {
		return nil, err
	}
	s.emit(ctx, events.Event{Application: app.ID, Type: events.TypeSubmitted, Reviewer: reviewer.UserID})
	return app, nil
}

// Approve applies the approve transition as the acting reviewer and emits an
// accepted event.
func (s *ApplicationService) Approve(ctx context.Context, applicationID, actorID int64) (*EthicsApplication, error) {
	return s.evaluate(ctx, applicationID, actorID, workflow.TransitionApprove, events.TypeAccepted)
}

// Reject applies the reject transition as the acting reviewer and emits a
// rejected event.
func (s *ApplicationService) Reject(ctx context.Context, applicationID, actorID int64) (*EthicsApplication, error) {
	return s.evaluate(ctx, applicationID, actorID, workflow.TransitionReject, events.TypeRejected)
}

func (s *ApplicationService) evaluate(ctx context.Context, applicationID, actorID int64, t workflow.Transition, eventType events.Type) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	if actorID == 0 {
		return nil, NewUnauthorizedError("authentication required")
	}
	ok, err := s.perms.HasPermission(ctx, app.ID, actorID, permissions.CapabilityReview)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewForbiddenError("no review permission for this application")
	}
	allowed, err := s.engine.CanTransition(ctx, app.ID, t)
	if err != nil {
		return nil, s.mapWorkflowErr(err)
	}
	if !allowed {
		return nil, NewForbiddenError(fmt.Sprintf("%s is not allowed from the current state", t))
	}
	if err := s.engine.Transition(ctx, app.ID, t); err != nil {
		return nil, s.mapWorkflowErr(err)
	}
	s.emit(ctx, events.Event{Application: app.ID, Type: eventType, Reviewer: actorID})
	return app, nil
}

// State exposes the application's current workflow state.
func (s *ApplicationService) State(ctx context.Context, applicationID int64) (workflow.State, error) {
	state, err := s.engine.CurrentState(ctx, applicationID)
	if err != nil {
		return "", s.mapWorkflowErr(err)
	}
	return state, nil
}

func (s *ApplicationService) assignRole(ctx context.Context, applicationID int64, role string, userID int64, replace bool) error {
	var err error
	if replace {
		err = s.roles.Replace(ctx, applicationID, role, userID)
	} else {
		err = s.roles.Add(ctx, applicationID, role, userID)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, permissions.ErrNoSuchUser):
		return NewInvalidError(fmt.Sprintf("cannot grant %s role: user %d does not exist", role, userID))
	case errors.Is(err, permissions.ErrRoleUnconfigured):
		return NewMisconfiguredError(fmt.Sprintf("role name for %s assignment is not configured", role))
	default:
		return err
	}
}

func (s *ApplicationService) mapWorkflowErr(err error) error {
	switch {
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		return NewForbiddenError("transition not allowed from the current state")
	case errors.Is(err, workflow.ErrNotEnrolled):
		return NewMisconfiguredError("application is not enrolled in the workflow")
	default:
		return err
	}
}

// emit publishes fire-and-forget: a failed publish is logged, never returned.
func (s *ApplicationService) emit(ctx context.Context, e events.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.logger.Error("failed to publish lifecycle event",
			zap.Int64("application_id", e.Application),
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
	}
}
