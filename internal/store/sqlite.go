package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openethics/openethics/internal/services"
)

// SQLite is the production Store over mattn/go-sqlite3.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, applies pragmas and
// runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

func (s *SQLite) Close() error { return s.db.Close() }

// --- users ---

func (s *SQLite) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, pass_hash, created_at FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (*services.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, pass_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*services.User, error) {
	var u services.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PassHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLite) AddUser(ctx context.Context, u *services.User) (*services.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.Email, u.Name, u.PassHash, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *u
	out.ID = id
	return &out, nil
}

func (s *SQLite) UserExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- question bank ---

func (s *SQLite) CreateQuestionGroup(ctx context.Context, g *services.QuestionGroup) (*services.QuestionGroup, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO question_groups (name) VALUES (?)`, g.Name)
	if err != nil {
		return nil, fmt.Errorf("insert question group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *g
	out.ID = id
	return &out, nil
}

func (s *SQLite) GetQuestionGroup(ctx context.Context, id int64) (*services.QuestionGroup, error) {
	var g services.QuestionGroup
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM question_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLite) CreateQuestion(ctx context.Context, q *services.Question) (*services.Question, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (group_id, label, type, ord) VALUES (?, ?, ?, ?)`,
		q.GroupID, q.Label, q.Type, q.Order)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *q
	out.ID = id
	return &out, nil
}

func (s *SQLite) GroupQuestions(ctx context.Context, groupID int64) ([]services.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, label, type, ord FROM questions WHERE group_id = ? ORDER BY ord, id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.Question
	for rows.Next() {
		var q services.Question
		if err := rows.Scan(&q.ID, &q.GroupID, &q.Label, &q.Type, &q.Order); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateChecklistLink(ctx context.Context, l *services.ChecklistLink) (*services.ChecklistLink, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_links (question_id, group_id, ord) VALUES (?, ?, ?)`,
		l.QuestionID, l.GroupID, l.Order)
	if err != nil {
		return nil, fmt.Errorf("insert checklist link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *l
	out.ID = id
	return &out, nil
}

func (s *SQLite) LinksForQuestion(ctx context.Context, questionID int64) ([]services.ChecklistLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, group_id, ord FROM checklist_links WHERE question_id = ? ORDER BY ord, id`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.ChecklistLink
	for rows.Next() {
		var l services.ChecklistLink
		if err := rows.Scan(&l.ID, &l.QuestionID, &l.GroupID, &l.Order); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- questionnaires ---

func (s *SQLite) CreateQuestionnaire(ctx context.Context, name string) (*services.Questionnaire, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO questionnaires (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert questionnaire: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &services.Questionnaire{ID: id, Name: name}, nil
}

func (s *SQLite) AddQuestionnaireGroup(ctx context.Context, questionnaireID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questionnaire_groups (questionnaire_id, group_id) VALUES (?, ?)`,
		questionnaireID, groupID)
	if err != nil {
		return fmt.Errorf("append questionnaire group: %w", err)
	}
	return nil
}

func (s *SQLite) QuestionnaireGroups(ctx context.Context, questionnaireID int64) ([]services.QuestionGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name
		 FROM questionnaire_groups qg
		 JOIN question_groups g ON g.id = qg.group_id
		 WHERE qg.questionnaire_id = ?
		 ORDER BY qg.id`, questionnaireID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.QuestionGroup
	for rows.Next() {
		var g services.QuestionGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- answers ---

func (s *SQLite) FindAnswerSet(ctx context.Context, userID, questionnaireID, groupID int64) (*services.AnswerSet, error) {
	var as services.AnswerSet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, questionnaire_id, group_id FROM answer_sets
		 WHERE user_id = ? AND questionnaire_id = ? AND group_id = ?`,
		userID, questionnaireID, groupID).
		Scan(&as.ID, &as.UserID, &as.QuestionnaireID, &as.GroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &as, nil
}

func (s *SQLite) CreateAnswerSet(ctx context.Context, as *services.AnswerSet) (*services.AnswerSet, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO answer_sets (user_id, questionnaire_id, group_id) VALUES (?, ?, ?)`,
		as.UserID, as.QuestionnaireID, as.GroupID)
	if err != nil {
		return nil, fmt.Errorf("insert answer set: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *as
	out.ID = id
	return &out, nil
}

func (s *SQLite) AddAnswer(ctx context.Context, a *services.QuestionAnswer) (*services.QuestionAnswer, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO question_answers (answer_set_id, question_id, value, created_at) VALUES (?, ?, ?, ?)`,
		a.AnswerSetID, a.QuestionID, a.Value, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert answer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *a
	out.ID = id
	return &out, nil
}

func (s *SQLite) AnswersForSet(ctx context.Context, answerSetID int64) ([]services.QuestionAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, answer_set_id, question_id, value, created_at FROM question_answers
		 WHERE answer_set_id = ? ORDER BY created_at, id`, answerSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.QuestionAnswer
	for rows.Next() {
		var a services.QuestionAnswer
		if err := rows.Scan(&a.ID, &a.AnswerSetID, &a.QuestionID, &a.Value, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- applications ---

func (s *SQLite) GetApplication(ctx context.Context, id int64) (*services.EthicsApplication, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, principal_investigator_id, active, checklist_id, application_form_id, created_at
		 FROM applications WHERE id = ?`, id)
	return scanApplication(row.Scan)
}

func scanApplication(scan func(dest ...any) error) (*services.EthicsApplication, error) {
	var app services.EthicsApplication
	var checklist, form sql.NullInt64
	err := scan(&app.ID, &app.Title, &app.PrincipalInvestigatorID, &app.Active, &checklist, &form, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if checklist.Valid {
		app.ChecklistID = &checklist.Int64
	}
	if form.Valid {
		app.ApplicationFormID = &form.Int64
	}
	return &app, nil
}

func (s *SQLite) CreateApplication(ctx context.Context, app *services.EthicsApplication) (*services.EthicsApplication, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (title, principal_investigator_id, active, checklist_id, application_form_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		app.Title, app.PrincipalInvestigatorID, app.Active, nullableID(app.ChecklistID), nullableID(app.ApplicationFormID), app.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *app
	out.ID = id
	return &out, nil
}

func (s *SQLite) SaveApplication(ctx context.Context, app *services.EthicsApplication) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE applications
		 SET title = ?, principal_investigator_id = ?, active = ?, checklist_id = ?, application_form_id = ?
		 WHERE id = ?`,
		app.Title, app.PrincipalInvestigatorID, app.Active, nullableID(app.ChecklistID), nullableID(app.ApplicationFormID), app.ID)
	if err != nil {
		return fmt.Errorf("update application %d: %w", app.ID, err)
	}
	return nil
}

func (s *SQLite) ActiveApplicationsForUser(ctx context.Context, userID int64) ([]services.EthicsApplication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, principal_investigator_id, active, checklist_id, application_form_id, created_at
		 FROM applications WHERE principal_investigator_id = ? AND active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.EthicsApplication
	for rows.Next() {
		app, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// --- committee ---

func (s *SQLite) CommitteeMembers(ctx context.Context) ([]services.CommitteeMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, count FROM committee_members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []services.CommitteeMember
	for rows.Next() {
		var cm services.CommitteeMember
		if err := rows.Scan(&cm.ID, &cm.UserID, &cm.Count); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func (s *SQLite) AddCommitteeMember(ctx context.Context, cm *services.CommitteeMember) (*services.CommitteeMember, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO committee_members (user_id, count) VALUES (?, ?)`, cm.UserID, cm.Count)
	if err != nil {
		return nil, fmt.Errorf("insert committee member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *cm
	out.ID = id
	return &out, nil
}

func (s *SQLite) IncrementCommitteeCount(ctx context.Context, memberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE committee_members SET count = count + 1 WHERE id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("increment committee count for %d: %w", memberID, err)
	}
	return nil
}

// --- workflow states ---

func (s *SQLite) WorkflowState(ctx context.Context, applicationID int64) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM workflow_states WHERE application_id = ?`, applicationID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

func (s *SQLite) SetWorkflowState(ctx context.Context, applicationID int64, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_states (application_id, state) VALUES (?, ?)
		 ON CONFLICT (application_id) DO UPDATE SET state = excluded.state`,
		applicationID, state)
	if err != nil {
		return fmt.Errorf("set workflow state for %d: %w", applicationID, err)
	}
	return nil
}

// --- local roles ---

func (s *SQLite) LocalRoles(ctx context.Context, applicationID, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM local_roles WHERE application_id = ? AND user_id = ? ORDER BY role`,
		applicationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *SQLite) AddLocalRole(ctx context.Context, applicationID, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_roles (application_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (application_id, user_id, role) DO NOTHING`,
		applicationID, userID, role)
	if err != nil {
		return fmt.Errorf("add local role: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveLocalRole(ctx context.Context, applicationID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM local_roles WHERE application_id = ? AND role = ?`, applicationID, role)
	if err != nil {
		return fmt.Errorf("remove local role: %w", err)
	}
	return nil
}
