package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openethics/openethics/internal/events"
	"github.com/openethics/openethics/internal/permissions"
	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/store"
	"github.com/openethics/openethics/internal/workflow"
)

const (
	testPIRole       = "Principal_Investigator"
	testReviewerRole = "Reviewer"
)

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []events.Type {
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type lifecycleFixture struct {
	mem    *store.Memory
	engine *workflow.FSMEngine
	roles  *permissions.LocalRoles
	pub    *capturePublisher
	apps   *services.ApplicationService
	pi     *services.User
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	pi, err := mem.AddUser(ctx, &services.User{Email: "pi@example.org", Name: "PI"})
	require.NoError(t, err)

	engine := workflow.NewFSMEngine("ethics_application", mem, nil)
	roles := permissions.NewLocalRoles(mem, map[string][]string{
		testPIRole:       {permissions.CapabilitySubmit, permissions.CapabilityView},
		testReviewerRole: {permissions.CapabilityReview, permissions.CapabilityView},
	})
	pub := &capturePublisher{}
	answers := services.NewAnswerService(mem)
	review := services.NewReviewService(mem)
	apps := services.NewApplicationService(
		mem, answers, review, engine, roles, roles, pub,
		testPIRole, testReviewerRole, nil)

	return &lifecycleFixture{mem: mem, engine: engine, roles: roles, pub: pub, apps: apps, pi: pi}
}

func (f *lifecycleFixture) addUser(t *testing.T, email string) *services.User {
	t.Helper()
	u, err := f.mem.AddUser(context.Background(), &services.User{Email: email, Name: email})
	require.NoError(t, err)
	return u
}

// addReviewer puts a fresh user on the committee and returns them.
func (f *lifecycleFixture) addReviewer(t *testing.T, email string) *services.User {
	t.Helper()
	u := f.addUser(t, email)
	_, err := f.mem.AddCommitteeMember(context.Background(), &services.CommitteeMember{UserID: u.ID})
	require.NoError(t, err)
	return u
}

func (f *lifecycleFixture) state(t *testing.T, appID int64) workflow.State {
	t.Helper()
	s, err := f.engine.CurrentState(context.Background(), appID)
	require.NoError(t, err)
	return s
}

func TestCreateEnrollsAndGrantsInvestigator(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	assert.True(t, app.Active)
	assert.Equal(t, workflow.StateWithResearcher, f.state(t, app.ID))

	ok, err := f.roles.HasPermission(ctx, app.ID, f.pi.ID, permissions.CapabilitySubmit)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []events.Type{events.TypeCreated}, f.pub.types())
	assert.Equal(t, app.ID, f.pub.events[0].Application)
}

func TestCreateRejectsMissingInvestigator(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.apps.Create(context.Background(), "Sleep study", 9999)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorInvalid, se.Code)
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.apps.Create(context.Background(), "", f.pi.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorInvalid, se.Code)
}

func TestSubmitForReviewAssignsReviewer(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	reviewer := f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateAwaitingApproval, f.state(t, app.ID))

	ok, err := f.roles.HasPermission(ctx, app.ID, reviewer.ID, permissions.CapabilityReview)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := f.mem.CommitteeMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, 1, members[0].Count)

	require.Equal(t, []events.Type{events.TypeCreated, events.TypeSubmitted}, f.pub.types())
	assert.Equal(t, reviewer.ID, f.pub.events[1].Reviewer)
}

func TestSubmitForReviewBalancesAcrossCommittee(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	revA := f.addReviewer(t, "a@example.org")
	revB := f.addReviewer(t, "b@example.org")

	appA, err := f.apps.Create(ctx, "Study A", f.pi.ID)
	require.NoError(t, err)
	appB, err := f.apps.Create(ctx, "Study B", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, appA.ID, f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, appB.ID, f.pi.ID)
	require.NoError(t, err)

	// First pick goes to the newest zero-count member, the second to the
	// remaining one.
	assert.Equal(t, revB.ID, f.pub.events[2].Reviewer)
	assert.Equal(t, revA.ID, f.pub.events[3].Reviewer)
}

func TestSubmitForReviewRequiresPermission(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.addReviewer(t, "rev@example.org")
	stranger := f.addUser(t, "stranger@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, app.ID, stranger.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)
	assert.Equal(t, workflow.StateWithResearcher, f.state(t, app.ID))
	assert.Equal(t, []events.Type{events.TypeCreated}, f.pub.types())
}

func TestSubmitForReviewRequiresAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, app.ID, 0)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorUnauthorized, se.Code)
}

func TestSubmitForReviewEmptyCommittee(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorMisconfigured, se.Code)
	// The transition itself stands; the deployment is what is broken.
	assert.Equal(t, workflow.StateAwaitingApproval, f.state(t, app.ID))
}

func TestSubmitForReviewTwice(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)
}

func TestApproveEmitsAccepted(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	reviewer := f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.Approve(ctx, app.ID, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, f.state(t, app.ID))

	require.Equal(t,
		[]events.Type{events.TypeCreated, events.TypeSubmitted, events.TypeAccepted},
		f.pub.types())
	assert.Equal(t, reviewer.ID, f.pub.events[2].Reviewer)
}

func TestRejectEmitsRejected(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	reviewer := f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.Reject(ctx, app.ID, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, f.state(t, app.ID))
	assert.Equal(t, events.TypeRejected, f.pub.events[2].Type)
}

func TestApproveRequiresReviewPermission(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)

	// The investigator cannot review their own application.
	_, err = f.apps.Approve(ctx, app.ID, f.pi.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)
	assert.Equal(t, workflow.StateAwaitingApproval, f.state(t, app.ID))
}

func TestApproveTwice(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	reviewer := f.addReviewer(t, "rev@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.SubmitForReview(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.Approve(ctx, app.ID, reviewer.ID)
	require.NoError(t, err)

	_, err = f.apps.Approve(ctx, app.ID, reviewer.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)
	// Still exactly one accepted event.
	assert.Equal(t,
		[]events.Type{events.TypeCreated, events.TypeSubmitted, events.TypeAccepted},
		f.pub.types())
}

func TestActiveApplicationsListsOnlyOwn(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	other := f.addUser(t, "other@example.org")

	mine, err := f.apps.Create(ctx, "Mine", f.pi.ID)
	require.NoError(t, err)
	_, err = f.apps.Create(ctx, "Theirs", other.ID)
	require.NoError(t, err)

	apps, err := f.apps.ActiveApplications(ctx, f.pi.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, mine.ID, apps[0].ID)

	none, err := f.apps.ActiveApplications(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetEnforcesViewPermission(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	stranger := f.addUser(t, "stranger@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	got, err := f.apps.Get(ctx, app.ID, f.pi.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = f.apps.Get(ctx, app.ID, stranger.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)
}

func TestChangePrincipalInvestigatorReplacesRole(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	successor := f.addUser(t, "successor@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	app, err = f.apps.ChangePrincipalInvestigator(ctx, app.ID, f.pi.ID, successor.ID)
	require.NoError(t, err)
	assert.Equal(t, successor.ID, app.PrincipalInvestigatorID)

	ok, err := f.roles.HasPermission(ctx, app.ID, successor.ID, permissions.CapabilitySubmit)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.roles.HasPermission(ctx, app.ID, f.pi.ID, permissions.CapabilitySubmit)
	require.NoError(t, err)
	assert.False(t, ok, "previous investigator loses the role")
}

func TestChangePrincipalInvestigatorRequiresPermission(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	attacker := f.addUser(t, "attacker@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	// A registered user without a role on the application cannot claim it.
	_, err = f.apps.ChangePrincipalInvestigator(ctx, app.ID, attacker.ID, attacker.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorForbidden, se.Code)

	got, err := f.mem.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pi.ID, got.PrincipalInvestigatorID)

	allowed, err := f.roles.HasPermission(ctx, app.ID, attacker.ID, permissions.CapabilitySubmit)
	require.NoError(t, err)
	assert.False(t, allowed)
	allowed, err = f.roles.HasPermission(ctx, app.ID, f.pi.ID, permissions.CapabilitySubmit)
	require.NoError(t, err)
	assert.True(t, allowed, "investigator keeps the role")
}

func TestChangePrincipalInvestigatorRequiresAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	successor := f.addUser(t, "successor@example.org")

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	_, err = f.apps.ChangePrincipalInvestigator(ctx, app.ID, 0, successor.ID)
	se, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, services.ErrorUnauthorized, se.Code)
}

func TestIsReadyToSubmit(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)

	cg, err := f.mem.CreateQuestionGroup(ctx, &services.QuestionGroup{Name: "Checklist"})
	require.NoError(t, err)
	q, err := f.mem.CreateQuestion(ctx, &services.Question{GroupID: cg.ID, Label: "Risky?", Type: services.QuestionTypeBoolean, Order: 1})
	require.NoError(t, err)

	answers := services.NewAnswerService(f.mem)
	checklist := services.NewChecklistService(f.mem, answers, cg.ID)
	basic, err := f.mem.CreateQuestionGroup(ctx, &services.QuestionGroup{Name: "Basics"})
	require.NoError(t, err)
	bq, err := f.mem.CreateQuestion(ctx, &services.Question{GroupID: basic.ID, Label: "Title?", Type: services.QuestionTypeText, Order: 1})
	require.NoError(t, err)
	form := services.NewFormService(f.mem, checklist, []int64{basic.ID})

	app, err := f.apps.Create(ctx, "Sleep study", f.pi.ID)
	require.NoError(t, err)

	ready, err := f.apps.IsReadyToSubmit(ctx, app)
	require.NoError(t, err)
	assert.False(t, ready, "no checklist yet")

	app, err = checklist.Start(ctx, app.ID)
	require.NoError(t, err)
	_, err = answers.Record(ctx, f.pi.ID, *app.ChecklistID, cg.ID, q.ID, "0")
	require.NoError(t, err)

	ready, err = f.apps.IsReadyToSubmit(ctx, app)
	require.NoError(t, err)
	assert.False(t, ready, "no application form yet")

	app, err = form.Configure(ctx, app.ID)
	require.NoError(t, err)
	ready, err = f.apps.IsReadyToSubmit(ctx, app)
	require.NoError(t, err)
	assert.False(t, ready, "form group unanswered")

	_, err = answers.Record(ctx, f.pi.ID, *app.ApplicationFormID, basic.ID, bq.ID, "Sleep study")
	require.NoError(t, err)
	ready, err = f.apps.IsReadyToSubmit(ctx, app)
	require.NoError(t, err)
	assert.True(t, ready)
}
