package services

import (
	"context"
	"fmt"
)

// FormStore abstracts persistence operations required by FormService.
type FormStore interface {
	GetApplication(ctx context.Context, id int64) (*EthicsApplication, error)
	SaveApplication(ctx context.Context, app *EthicsApplication) error
	GetQuestionGroup(ctx context.Context, id int64) (*QuestionGroup, error)
	CreateQuestionnaire(ctx context.Context, name string) (*Questionnaire, error)
	AddQuestionnaireGroup(ctx context.Context, questionnaireID, groupID int64) error
}

// FormService composes the full application form questionnaire out of the
// statically configured basic groups followed by the groups selected by the
// checklist answers.
type FormService struct {
	store       FormStore
	checklist   *ChecklistService
	basicGroups []int64
}

func NewFormService(store FormStore, checklist *ChecklistService, basicGroups []int64) *FormService {
	return &FormService{store: store, checklist: checklist, basicGroups: basicGroups}
}

// Configure creates the application form questionnaire for an application,
// exactly once. A second call is a no-op returning the application unchanged.
// The checklist prerequisite must be satisfied first; basic groups come from
// configuration and each id must resolve to an existing group.
func (s *FormService) Configure(ctx context.Context, applicationID int64) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	if _, err := s.checklist.Prerequisite(ctx, app); err != nil {
		return nil, err
	}
	if app.ApplicationFormID != nil {
		return app, nil
	}

	if len(s.basicGroups) == 0 {
		return nil, NewMisconfiguredError("basic application groups not configured")
	}
	basic := make([]QuestionGroup, 0, len(s.basicGroups))
	for _, id := range s.basicGroups {
		group, err := s.store.GetQuestionGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, NewMisconfiguredError(fmt.Sprintf("question group does not exist for configured id %d", id))
		}
		basic = append(basic, *group)
	}

	derived, err := s.checklist.ResolveGroups(ctx, app)
	if err != nil {
		return nil, err
	}

	form, err := s.store.CreateQuestionnaire(ctx, fmt.Sprintf("Application form for application %d", app.ID))
	if err != nil {
		return nil, err
	}
	for _, group := range append(basic, derived...) {
		if err := s.store.AddQuestionnaireGroup(ctx, form.ID, group.ID); err != nil {
			return nil, err
		}
	}

	app.ApplicationFormID = &form.ID
	if err := s.store.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}
