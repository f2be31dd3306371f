package attempt

import (
	"time"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/grading"
)

var (
	ErrProfileMissing    = apierr.New(apierr.KindNotFound, "profile_missing", "your profile could not be found")
	ErrNotStudent        = apierr.New(apierr.KindForbidden, "not_student", "only students can take tests")
	ErrTestNotFound      = apierr.New(apierr.KindNotFound, "test_not_found", "test not found")
	ErrNotAssigned       = apierr.New(apierr.KindForbidden, "not_assigned", "this test is not assigned to you")
	ErrAlreadyCompleted  = apierr.New(apierr.KindAlreadyCompleted, "already_completed", "you have already completed this test")
	ErrAttemptInProgress = apierr.New(apierr.KindConflict, "attempt_in_progress", "an earlier attempt at this test was left unfinished")
	ErrAttemptNotFound   = apierr.New(apierr.KindNotFound, "attempt_not_found", "attempt not found")
	ErrNotInProgress     = apierr.New(apierr.KindConflict, "not_in_progress", "this attempt is no longer in progress")
	ErrTimeUp            = apierr.New(apierr.KindConflict, "time_up", "time is up for this attempt")
)

type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateCompleted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Attempt mirrors a test_attempts row.
type Attempt struct {
	ID           string     `json:"id"`
	TestID       string     `json:"test_id"`
	StudentID    string     `json:"student_id"`
	StartedAt    time.Time  `json:"started_at"`
	DeadlineAt   *time.Time `json:"deadline_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	IsCompleted  bool       `json:"is_completed"`
	TotalScore   float64    `json:"total_score"`
	MaxScore     float64    `json:"max_score"`
	Percentage   float64    `json:"percentage_score"`
	Quarter      string     `json:"quarter,omitempty"`
	AcademicYear string     `json:"academic_year,omitempty"`
}

// Result is a completed attempt with its graded answers in question order.
type Result struct {
	Attempt Attempt          `json:"attempt"`
	Answers []grading.Answer `json:"answers"`
}

// HistoryItem is one row of a student's results list.
type HistoryItem struct {
	Attempt   Attempt `json:"attempt"`
	TestTitle string  `json:"test_title"`
	Subject   string  `json:"subject,omitempty"`
}
