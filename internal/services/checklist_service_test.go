package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/store"
)

// checklistFixture is a portal seeded with a four-question checklist group and
// the target groups its links fan out to:
//
//	Q1 -> G9
//	Q2 -> G6, G7
//	Q3 -> G7
//	Q4 -> G8
type checklistFixture struct {
	mem       *store.Memory
	answers   *services.AnswerService
	checklist *services.ChecklistService
	pi        *services.User
	app       *services.EthicsApplication
	cg        *services.QuestionGroup
	questions []*services.Question
	targets   map[string]*services.QuestionGroup
}

func newChecklistFixture(t *testing.T) *checklistFixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	pi, err := mem.AddUser(ctx, &services.User{Email: "pi@example.org", Name: "PI"})
	require.NoError(t, err)
	cg, err := mem.CreateQuestionGroup(ctx, &services.QuestionGroup{Name: "Checklist"})
	require.NoError(t, err)

	questions := make([]*services.Question, 0, 4)
	for i := 1; i <= 4; i++ {
		q, err := mem.CreateQuestion(ctx, &services.Question{
			GroupID: cg.ID,
			Label:   fmt.Sprintf("Question %d", i),
			Type:    services.QuestionTypeBoolean,
			Order:   i,
		})
		require.NoError(t, err)
		questions = append(questions, q)
	}

	targets := map[string]*services.QuestionGroup{}
	for _, name := range []string{"G6", "G7", "G8", "G9"} {
		g, err := mem.CreateQuestionGroup(ctx, &services.QuestionGroup{Name: name})
		require.NoError(t, err)
		targets[name] = g
	}

	link := func(q *services.Question, g *services.QuestionGroup, order int) {
		_, err := mem.CreateChecklistLink(ctx, &services.ChecklistLink{QuestionID: q.ID, GroupID: g.ID, Order: order})
		require.NoError(t, err)
	}
	link(questions[0], targets["G9"], 1)
	link(questions[1], targets["G6"], 1)
	link(questions[1], targets["G7"], 2)
	link(questions[2], targets["G7"], 1)
	link(questions[3], targets["G8"], 1)

	app, err := mem.CreateApplication(ctx, &services.EthicsApplication{
		Title:                   "Study",
		PrincipalInvestigatorID: pi.ID,
		Active:                  true,
	})
	require.NoError(t, err)

	answers := services.NewAnswerService(mem)
	return &checklistFixture{
		mem:       mem,
		answers:   answers,
		checklist: services.NewChecklistService(mem, answers, cg.ID),
		pi:        pi,
		app:       app,
		cg:        cg,
		questions: questions,
		targets:   targets,
	}
}

// answer writes the principal investigator's checklist answers, one value per
// question in order.
func (f *checklistFixture) answer(t *testing.T, app *services.EthicsApplication, values ...string) {
	t.Helper()
	ctx := context.Background()
	require.NotNil(t, app.ChecklistID)
	for i, v := range values {
		_, err := f.answers.Record(ctx, f.pi.ID, *app.ChecklistID, f.cg.ID, f.questions[i].ID, v)
		require.NoError(t, err)
	}
}

func TestStartCreatesChecklistOnce(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	require.NotNil(t, app.ChecklistID)

	groups, err := f.mem.QuestionnaireGroups(ctx, *app.ChecklistID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, f.cg.ID, groups[0].ID)

	again, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	assert.Equal(t, *app.ChecklistID, *again.ChecklistID)
}

func TestStartUnknownApplication(t *testing.T) {
	f := newChecklistFixture(t)

	_, err := f.checklist.Start(context.Background(), 9999)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorNotFound, se.Code)
}

func TestStartMisconfiguredChecklistGroup(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)
	dangling := services.NewChecklistService(f.mem, f.answers, 9999)

	_, err := dangling.Start(ctx, f.app.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorMisconfigured, se.Code)
}

func TestResolveGroupsFollowsYesAnswers(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	f.answer(t, app, "0", "1", "1", "1")

	groups, err := f.checklist.ResolveGroups(ctx, app)
	require.NoError(t, err)

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	// Q1 answered no drops G9; G7 appears once at its first occurrence.
	assert.Equal(t, []string{"G6", "G7", "G8"}, names)
}

func TestResolveGroupsAllNo(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	f.answer(t, app, "0", "0", "0", "0")

	groups, err := f.checklist.ResolveGroups(ctx, app)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestResolveGroupsHonorsLatestAnswer(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	f.answer(t, app, "0", "0", "0", "1")
	// The investigator changes their mind about Q4.
	_, err = f.answers.Record(ctx, f.pi.ID, *app.ChecklistID, f.cg.ID, f.questions[3].ID, "0")
	require.NoError(t, err)

	groups, err := f.checklist.ResolveGroups(ctx, app)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestResolveGroupsRequiresChecklist(t *testing.T) {
	f := newChecklistFixture(t)

	_, err := f.checklist.ResolveGroups(context.Background(), f.app)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorPrecondition, se.Code)
}

func TestResolveGroupsRequiresAnswers(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)

	_, err = f.checklist.ResolveGroups(ctx, app)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorPrecondition, se.Code)
}

func TestResolveGroupsDanglingLinkTarget(t *testing.T) {
	ctx := context.Background()
	f := newChecklistFixture(t)
	_, err := f.mem.CreateChecklistLink(ctx, &services.ChecklistLink{QuestionID: f.questions[0].ID, GroupID: 9999, Order: 5})
	require.NoError(t, err)

	app, err := f.checklist.Start(ctx, f.app.ID)
	require.NoError(t, err)
	f.answer(t, app, "1", "0", "0", "0")

	_, err = f.checklist.ResolveGroups(ctx, app)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorMisconfigured, se.Code)
}
