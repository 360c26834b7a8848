package services

import (
	"strconv"
	"strings"
	"time"
)

// User is a portal account. Every user may create ethics applications; the
// creator becomes the principal investigator of the application.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	PassHash  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionGroup is a named, ordered bundle of questions presented together.
type QuestionGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Question is a single prompt inside a group. Type is "text" or "boolean";
// boolean questions drive the checklist fan-out. Immutable once answered
// against.
type Question struct {
	ID      int64  `json:"id"`
	GroupID int64  `json:"group_id"`
	Label   string `json:"label"`
	Type    string `json:"type"`
	Order   int    `json:"order"`
}

const (
	QuestionTypeText    = "text"
	QuestionTypeBoolean = "boolean"
)

// Questionnaire is a named, insertion-ordered sequence of question groups.
// Group membership is append-only once an application references it.
type Questionnaire struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AnswerSet records one user's answers to one group within one questionnaire.
type AnswerSet struct {
	ID              int64 `json:"id"`
	UserID          int64 `json:"user_id"`
	QuestionnaireID int64 `json:"questionnaire_id"`
	GroupID         int64 `json:"group_id"`
}

// QuestionAnswer is a single timestamped answer. A question may be answered
// more than once within a set; only the most recent answer counts.
type QuestionAnswer struct {
	ID          int64     `json:"id"`
	AnswerSetID int64     `json:"answer_set_id"`
	QuestionID  int64     `json:"question_id"`
	Value       string    `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

// Truthy interprets a boolean checklist answer via truthy-int coercion:
// any value that parses to a non-zero integer counts as "yes".
func (a QuestionAnswer) Truthy() bool {
	n, err := strconv.Atoi(strings.TrimSpace(a.Value))
	return err == nil && n != 0
}

// ChecklistLink maps one checklist question to one group that is included in
// the application form when the question is answered yes. Multiple links may
// target the same question or the same group.
type ChecklistLink struct {
	ID         int64 `json:"id"`
	QuestionID int64 `json:"question_id"`
	GroupID    int64 `json:"group_id"`
	Order      int   `json:"order"`
}

// EthicsApplication is the root aggregate. ChecklistID and ApplicationFormID
// reference questionnaires owned exclusively by this application. Applications
// are never hard-deleted; Active is the soft flag.
type EthicsApplication struct {
	ID                      int64     `json:"id"`
	Title                   string    `json:"title"`
	PrincipalInvestigatorID int64     `json:"principal_investigator_id"`
	Active                  bool      `json:"active"`
	ChecklistID             *int64    `json:"checklist_id,omitempty"`
	ApplicationFormID       *int64    `json:"application_form_id,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// CommitteeMember is one reviewer in the pool. Count tracks how many
// applications the member has been assigned for review.
type CommitteeMember struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	Count  int   `json:"count"`
}
