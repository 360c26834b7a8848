package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/openethics/openethics/internal/services"
)

// Memory is a mutex-protected in-memory Store. Answer ordering is insertion
// order, which is also chronological because answers are timestamped on
// write.
type Memory struct {
	mu sync.RWMutex

	nextID int64

	users          map[int64]services.User
	groups         map[int64]services.QuestionGroup
	questions      map[int64]services.Question
	questionnaires map[int64]services.Questionnaire
	qnGroups       map[int64][]int64 // questionnaire id -> group ids, insertion order
	answerSets     map[int64]services.AnswerSet
	answers        map[int64][]services.QuestionAnswer // answer set id -> answers
	links          []services.ChecklistLink
	applications   map[int64]services.EthicsApplication
	committee      map[int64]services.CommitteeMember
	states         map[int64]string
	roleGrants     map[int64]map[string]map[int64]bool // app id -> role -> user ids
}

func NewMemory() *Memory {
	return &Memory{
		users:          map[int64]services.User{},
		groups:         map[int64]services.QuestionGroup{},
		questions:      map[int64]services.Question{},
		questionnaires: map[int64]services.Questionnaire{},
		qnGroups:       map[int64][]int64{},
		answerSets:     map[int64]services.AnswerSet{},
		answers:        map[int64][]services.QuestionAnswer{},
		applications:   map[int64]services.EthicsApplication{},
		committee:      map[int64]services.CommitteeMember{},
		states:         map[int64]string{},
		roleGrants:     map[int64]map[string]map[int64]bool{},
	}
}

func (m *Memory) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

// --- users ---

func (m *Memory) FindUserByEmail(_ context.Context, email string) (*services.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copy := u
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *Memory) AddUser(_ context.Context, u *services.User) (*services.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *u
	stored.ID = m.nextSeq()
	m.users[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*services.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		copy := u
		return &copy, nil
	}
	return nil, nil
}

func (m *Memory) UserExists(ctx context.Context, id int64) (bool, error) {
	u, err := m.GetUser(ctx, id)
	return u != nil, err
}

// --- question bank ---

func (m *Memory) CreateQuestionGroup(_ context.Context, g *services.QuestionGroup) (*services.QuestionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *g
	stored.ID = m.nextSeq()
	m.groups[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) GetQuestionGroup(_ context.Context, id int64) (*services.QuestionGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.groups[id]; ok {
		copy := g
		return &copy, nil
	}
	return nil, nil
}

func (m *Memory) CreateQuestion(_ context.Context, q *services.Question) (*services.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *q
	stored.ID = m.nextSeq()
	m.questions[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) GroupQuestions(_ context.Context, groupID int64) ([]services.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []services.Question
	for _, q := range m.questions {
		if q.GroupID == groupID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateChecklistLink(_ context.Context, l *services.ChecklistLink) (*services.ChecklistLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *l
	stored.ID = m.nextSeq()
	m.links = append(m.links, stored)
	copy := stored
	return &copy, nil
}

func (m *Memory) LinksForQuestion(_ context.Context, questionID int64) ([]services.ChecklistLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []services.ChecklistLink
	for _, l := range m.links {
		if l.QuestionID == questionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- questionnaires ---

func (m *Memory) CreateQuestionnaire(_ context.Context, name string) (*services.Questionnaire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := services.Questionnaire{ID: m.nextSeq(), Name: name}
	m.questionnaires[q.ID] = q
	copy := q
	return &copy, nil
}

func (m *Memory) AddQuestionnaireGroup(_ context.Context, questionnaireID, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qnGroups[questionnaireID] = append(m.qnGroups[questionnaireID], groupID)
	return nil
}

func (m *Memory) QuestionnaireGroups(_ context.Context, questionnaireID int64) ([]services.QuestionGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.qnGroups[questionnaireID]
	out := make([]services.QuestionGroup, 0, len(ids))
	for _, id := range ids {
		if g, ok := m.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// --- answers ---

func (m *Memory) FindAnswerSet(_ context.Context, userID, questionnaireID, groupID int64) (*services.AnswerSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, as := range m.answerSets {
		if as.UserID == userID && as.QuestionnaireID == questionnaireID && as.GroupID == groupID {
			copy := as
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateAnswerSet(_ context.Context, as *services.AnswerSet) (*services.AnswerSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *as
	stored.ID = m.nextSeq()
	m.answerSets[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) AddAnswer(_ context.Context, a *services.QuestionAnswer) (*services.QuestionAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *a
	stored.ID = m.nextSeq()
	m.answers[stored.AnswerSetID] = append(m.answers[stored.AnswerSetID], stored)
	copy := stored
	return &copy, nil
}

func (m *Memory) AnswersForSet(_ context.Context, answerSetID int64) ([]services.QuestionAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]services.QuestionAnswer, len(m.answers[answerSetID]))
	copy(out, m.answers[answerSetID])
	return out, nil
}

// --- applications ---

func (m *Memory) GetApplication(_ context.Context, id int64) (*services.EthicsApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if app, ok := m.applications[id]; ok {
		copy := app
		return &copy, nil
	}
	return nil, nil
}

func (m *Memory) CreateApplication(_ context.Context, app *services.EthicsApplication) (*services.EthicsApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *app
	stored.ID = m.nextSeq()
	m.applications[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) SaveApplication(_ context.Context, app *services.EthicsApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[app.ID] = *app
	return nil
}

func (m *Memory) ActiveApplicationsForUser(_ context.Context, userID int64) ([]services.EthicsApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []services.EthicsApplication
	for _, app := range m.applications {
		if app.PrincipalInvestigatorID == userID && app.Active {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- committee ---

func (m *Memory) CommitteeMembers(_ context.Context) ([]services.CommitteeMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]services.CommitteeMember, 0, len(m.committee))
	for _, cm := range m.committee {
		out = append(out, cm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddCommitteeMember(_ context.Context, cm *services.CommitteeMember) (*services.CommitteeMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *cm
	stored.ID = m.nextSeq()
	m.committee[stored.ID] = stored
	copy := stored
	return &copy, nil
}

func (m *Memory) IncrementCommitteeCount(_ context.Context, memberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm, ok := m.committee[memberID]
	if !ok {
		return nil
	}
	cm.Count++
	m.committee[memberID] = cm
	return nil
}

// --- workflow states ---

func (m *Memory) WorkflowState(_ context.Context, applicationID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[applicationID], nil
}

func (m *Memory) SetWorkflowState(_ context.Context, applicationID int64, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[applicationID] = state
	return nil
}

// --- local roles ---

func (m *Memory) LocalRoles(_ context.Context, applicationID, userID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for role, users := range m.roleGrants[applicationID] {
		if users[userID] {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddLocalRole(_ context.Context, applicationID, userID int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roleGrants[applicationID] == nil {
		m.roleGrants[applicationID] = map[string]map[int64]bool{}
	}
	if m.roleGrants[applicationID][role] == nil {
		m.roleGrants[applicationID][role] = map[int64]bool{}
	}
	m.roleGrants[applicationID][role][userID] = true
	return nil
}

func (m *Memory) RemoveLocalRole(_ context.Context, applicationID int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if grants, ok := m.roleGrants[applicationID]; ok {
		delete(grants, role)
	}
	return nil
}
