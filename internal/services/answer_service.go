package services

import (
	"context"
	"fmt"
	"time"
)

// AnswerStore abstracts persistence operations required by AnswerService.
type AnswerStore interface {
	GetQuestionGroup(ctx context.Context, id int64) (*QuestionGroup, error)
	GroupQuestions(ctx context.Context, groupID int64) ([]Question, error)
	QuestionnaireGroups(ctx context.Context, questionnaireID int64) ([]QuestionGroup, error)
	FindAnswerSet(ctx context.Context, userID, questionnaireID, groupID int64) (*AnswerSet, error)
	CreateAnswerSet(ctx context.Context, as *AnswerSet) (*AnswerSet, error)
	AddAnswer(ctx context.Context, a *QuestionAnswer) (*QuestionAnswer, error)
	AnswersForSet(ctx context.Context, answerSetID int64) ([]QuestionAnswer, error)
}

// AnswerService owns answer-set bookkeeping: recording answers, the
// latest-answer-per-question view, and group completeness.
type AnswerService struct {
	store AnswerStore
	now   func() time.Time
}

func NewAnswerService(store AnswerStore) *AnswerService {
	return &AnswerService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record stores an answer for a question, creating the answer set for
// (user, questionnaire, group) on first write. The question must belong to
// the group and the group must belong to the questionnaire.
func (s *AnswerService) Record(ctx context.Context, userID, questionnaireID, groupID, questionID int64, value string) (*QuestionAnswer, error) {
	groups, err := s.store.QuestionnaireGroups(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}
	inQuestionnaire := false
	for _, g := range groups {
		if g.ID == groupID {
			inQuestionnaire = true
			break
		}
	}
	if !inQuestionnaire {
		return nil, NewNotFoundError(fmt.Sprintf("group %d is not part of questionnaire %d", groupID, questionnaireID))
	}

	questions, err := s.store.GroupQuestions(ctx, groupID)
	if err != nil {
		return nil, err
	}
	inGroup := false
	for _, q := range questions {
		if q.ID == questionID {
			inGroup = true
			break
		}
	}
	if !inGroup {
		return nil, NewNotFoundError(fmt.Sprintf("question %d is not part of group %d", questionID, groupID))
	}

	set, err := s.store.FindAnswerSet(ctx, userID, questionnaireID, groupID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		set, err = s.store.CreateAnswerSet(ctx, &AnswerSet{UserID: userID, QuestionnaireID: questionnaireID, GroupID: groupID})
		if err != nil {
			return nil, err
		}
	}
	return s.store.AddAnswer(ctx, &QuestionAnswer{
		AnswerSetID: set.ID,
		QuestionID:  questionID,
		Value:       value,
		CreatedAt:   s.now(),
	})
}

// Latest returns the most recent answer per question for the user's answer
// set on (questionnaire, group), in the group's question order. Questions
// without any answer are omitted. Returns a nil slice without error if no
// answer set exists.
func (s *AnswerService) Latest(ctx context.Context, userID, questionnaireID, groupID int64) ([]QuestionAnswer, error) {
	set, err := s.store.FindAnswerSet(ctx, userID, questionnaireID, groupID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, nil
	}
	answers, err := s.store.AnswersForSet(ctx, set.ID)
	if err != nil {
		return nil, err
	}
	latest := map[int64]QuestionAnswer{}
	for _, a := range answers {
		prev, ok := latest[a.QuestionID]
		if !ok || !a.CreatedAt.Before(prev.CreatedAt) {
			latest[a.QuestionID] = a
		}
	}
	questions, err := s.store.GroupQuestions(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]QuestionAnswer, 0, len(latest))
	for _, q := range questions {
		if a, ok := latest[q.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// IsComplete reports whether the user's answer set covers every question in
// the group. A missing answer set is simply incomplete, not an error.
func (s *AnswerService) IsComplete(ctx context.Context, userID, questionnaireID, groupID int64) (bool, error) {
	set, err := s.store.FindAnswerSet(ctx, userID, questionnaireID, groupID)
	if err != nil {
		return false, err
	}
	if set == nil {
		return false, nil
	}
	questions, err := s.store.GroupQuestions(ctx, groupID)
	if err != nil {
		return false, err
	}
	answers, err := s.store.AnswersForSet(ctx, set.ID)
	if err != nil {
		return false, err
	}
	answered := map[int64]bool{}
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	for _, q := range questions {
		if !answered[q.ID] {
			return false, nil
		}
	}
	return true, nil
}
