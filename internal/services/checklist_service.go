package services

import (
	"context"
	"fmt"
)

// ChecklistStore abstracts persistence operations required by
// ChecklistService.
type ChecklistStore interface {
	GetApplication(ctx context.Context, id int64) (*EthicsApplication, error)
	SaveApplication(ctx context.Context, app *EthicsApplication) error
	GetQuestionGroup(ctx context.Context, id int64) (*QuestionGroup, error)
	CreateQuestionnaire(ctx context.Context, name string) (*Questionnaire, error)
	AddQuestionnaireGroup(ctx context.Context, questionnaireID, groupID int64) error
	QuestionnaireGroups(ctx context.Context, questionnaireID int64) ([]QuestionGroup, error)
	FindAnswerSet(ctx context.Context, userID, questionnaireID, groupID int64) (*AnswerSet, error)
	LinksForQuestion(ctx context.Context, questionID int64) ([]ChecklistLink, error)
}

// ChecklistService configures checklist questionnaires and resolves a
// completed checklist into the extra question groups it selects.
type ChecklistService struct {
	store            ChecklistStore
	answers          *AnswerService
	checklistGroupID int64
}

func NewChecklistService(store ChecklistStore, answers *AnswerService, checklistGroupID int64) *ChecklistService {
	return &ChecklistService{store: store, answers: answers, checklistGroupID: checklistGroupID}
}

// Start configures the checklist questionnaire for an application if it does
// not have one yet. Repeat calls return the application unchanged.
func (s *ChecklistService) Start(ctx context.Context, applicationID int64) (*EthicsApplication, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, NewNotFoundError(fmt.Sprintf("application %d not found", applicationID))
	}
	if app.ChecklistID != nil {
		return app, nil
	}
	if s.checklistGroupID == 0 {
		return nil, NewMisconfiguredError("checklist group id not configured")
	}
	group, err := s.store.GetQuestionGroup(ctx, s.checklistGroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, NewMisconfiguredError(fmt.Sprintf("checklist group does not exist for configured id %d", s.checklistGroupID))
	}
	q, err := s.store.CreateQuestionnaire(ctx, fmt.Sprintf("Checklist for application %d", app.ID))
	if err != nil {
		return nil, err
	}
	if err := s.store.AddQuestionnaireGroup(ctx, q.ID, group.ID); err != nil {
		return nil, err
	}
	app.ChecklistID = &q.ID
	if err := s.store.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Prerequisite verifies that the application has a checklist and that the
// principal investigator has started answering its first group. Returns that
// first group on success and a precondition error otherwise.
func (s *ChecklistService) Prerequisite(ctx context.Context, app *EthicsApplication) (*QuestionGroup, error) {
	if app == nil {
		return nil, NewInvalidError("application is required")
	}
	if app.ChecklistID == nil {
		return nil, NewPreconditionError(fmt.Sprintf("application %d has no checklist", app.ID))
	}
	groups, err := s.store.QuestionnaireGroups(ctx, *app.ChecklistID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, NewPreconditionError(fmt.Sprintf("checklist %d has no question groups", *app.ChecklistID))
	}
	first := groups[0]
	set, err := s.store.FindAnswerSet(ctx, app.PrincipalInvestigatorID, *app.ChecklistID, first.ID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, NewPreconditionError(fmt.Sprintf("checklist for application %d has not been answered", app.ID))
	}
	return &first, nil
}

// ResolveGroups walks the principal investigator's latest checklist answers
// in question order and collects the groups linked to each yes answer, in
// link order. The first occurrence of a group wins; later duplicates are
// dropped.
//
// The application must have a checklist and the investigator must have an
// answer set on its first group, otherwise the checklist prerequisite is
// unmet and a precondition error is returned.
func (s *ChecklistService) ResolveGroups(ctx context.Context, app *EthicsApplication) ([]QuestionGroup, error) {
	first, err := s.Prerequisite(ctx, app)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.Latest(ctx, app.PrincipalInvestigatorID, *app.ChecklistID, first.ID)
	if err != nil {
		return nil, err
	}

	var out []QuestionGroup
	seen := map[int64]bool{}
	for _, a := range answers {
		if !a.Truthy() {
			continue
		}
		links, err := s.store.LinksForQuestion(ctx, a.QuestionID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if seen[link.GroupID] {
				continue
			}
			group, err := s.store.GetQuestionGroup(ctx, link.GroupID)
			if err != nil {
				return nil, err
			}
			if group == nil {
				return nil, NewMisconfiguredError(fmt.Sprintf("checklist link %d references missing group %d", link.ID, link.GroupID))
			}
			seen[link.GroupID] = true
			out = append(out, *group)
		}
	}
	return out, nil
}
