package attempt

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/grading"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

type Store interface {
	CreateAttempt(ctx context.Context, a Attempt) error
	CountCompleted(ctx context.Context, testID, studentID string) (int, error)
	OpenAttempt(ctx context.Context, testID, studentID string) (Attempt, bool, error)
	CompleteAttempt(ctx context.Context, a Attempt, answers []grading.Answer) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	Result(ctx context.Context, id string) (Result, error)
	ListForStudent(ctx context.Context, studentID string) ([]HistoryItem, error)
}

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
}

func NewSQLStore(h *sql.DB, events *syncx.EventRepo) *SQLStore {
	return &SQLStore{db: h, events: events}
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_attempts (id, test_id, student_id, started_at, deadline_at, is_completed, quarter, academic_year)
		 VALUES ($1,$2,$3,$4,$5,FALSE,$6,$7)`,
		a.ID, a.TestID, a.StudentID, a.StartedAt.Unix(), db.NullUnix(a.DeadlineAt), a.Quarter, a.AcademicYear)
	return err
}

func (s *SQLStore) CountCompleted(ctx context.Context, testID, studentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM test_attempts WHERE test_id=$1 AND student_id=$2 AND is_completed`,
		testID, studentID).Scan(&n)
	return n, err
}

const attemptCols = `id, test_id, student_id, started_at, deadline_at, completed_at, is_completed,
       total_score, max_score, percentage_score, quarter, academic_year`

func scanAttempt(sc interface{ Scan(...any) error }, extra ...any) (Attempt, error) {
	var (
		a                   Attempt
		started             int64
		deadline, completed sql.NullInt64
	)
	dest := []any{&a.ID, &a.TestID, &a.StudentID, &started, &deadline, &completed, &a.IsCompleted,
		&a.TotalScore, &a.MaxScore, &a.Percentage, &a.Quarter, &a.AcademicYear}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = db.TimeOf(started)
	a.DeadlineAt = db.TimePtr(deadline)
	a.CompletedAt = db.TimePtr(completed)
	return a, nil
}

// OpenAttempt returns the latest unfinished attempt, if any.
func (s *SQLStore) OpenAttempt(ctx context.Context, testID, studentID string) (Attempt, bool, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM test_attempts
		  WHERE test_id=$1 AND student_id=$2 AND NOT is_completed
		  ORDER BY started_at DESC LIMIT 1`, testID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

// CompleteAttempt writes every answer row and then marks the attempt
// completed, in one transaction. ErrAlreadyCompleted means another
// submission won; nothing was written.
func (s *SQLStore) CompleteAttempt(ctx context.Context, a Attempt, answers []grading.Answer) error {
	completedAt := time.Now()
	if a.CompletedAt != nil {
		completedAt = *a.CompletedAt
	}
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var done bool
		err := tx.QueryRowContext(ctx, `SELECT is_completed FROM test_attempts WHERE id=$1`, a.ID).Scan(&done)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAttemptNotFound
		}
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyCompleted
		}
		for _, ans := range answers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO student_answers (id, attempt_id, question_id, selected_option_id, text_answer, is_correct, points_earned)
				 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				uuid.NewString(), a.ID, ans.QuestionID, db.NullString(ans.OptionID), db.NullString(ans.Text),
				ans.Correct, ans.Points); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE test_attempts
			    SET completed_at=$1, is_completed=TRUE, total_score=$2, max_score=$3, percentage_score=$4
			  WHERE id=$5 AND NOT is_completed`,
			completedAt.Unix(), a.TotalScore, a.MaxScore, a.Percentage, a.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAlreadyCompleted
		}
		if s.events == nil {
			return nil
		}
		return s.events.AppendTx(ctx, tx, syncx.NewEvent(syncx.TypeAttemptSubmitted, a.ID, map[string]any{
			"test_id":          a.TestID,
			"student_id":       a.StudentID,
			"total_score":      a.TotalScore,
			"max_score":        a.MaxScore,
			"percentage_score": a.Percentage,
		}))
	})
	if err == nil || errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrAttemptNotFound) {
		return err
	}
	// a concurrent writer in another process trips the unique answer index
	if cur, gerr := s.GetAttempt(ctx, a.ID); gerr == nil && cur.IsCompleted {
		return ErrAlreadyCompleted
	}
	return err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM test_attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

// Result loads the attempt with its answers in question order.
func (s *SQLStore) Result(ctx context.Context, id string) (Result, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return Result{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sa.question_id, sa.selected_option_id, sa.text_answer, sa.is_correct, sa.points_earned
		   FROM student_answers sa JOIN questions q ON q.id = sa.question_id
		  WHERE sa.attempt_id=$1 ORDER BY q.question_order`, id)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()
	r := Result{Attempt: a, Answers: []grading.Answer{}}
	for rows.Next() {
		var (
			ans       grading.Answer
			opt, text sql.NullString
		)
		if err := rows.Scan(&ans.QuestionID, &opt, &text, &ans.Correct, &ans.Points); err != nil {
			return Result{}, err
		}
		ans.OptionID = db.StringPtr(opt)
		ans.Text = db.StringPtr(text)
		r.Answers = append(r.Answers, ans)
	}
	return r, rows.Err()
}

// ListForStudent returns completed attempts, newest first.
func (s *SQLStore) ListForStudent(ctx context.Context, studentID string) ([]HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.test_id, a.student_id, a.started_at, a.deadline_at, a.completed_at, a.is_completed,
		        a.total_score, a.max_score, a.percentage_score, a.quarter, a.academic_year, t.title, t.subject
		   FROM test_attempts a JOIN tests t ON t.id = a.test_id
		  WHERE a.student_id=$1 AND a.is_completed
		  ORDER BY a.completed_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HistoryItem{}
	for rows.Next() {
		var h HistoryItem
		a, err := scanAttempt(rows, &h.TestTitle, &h.Subject)
		if err != nil {
			return nil, err
		}
		h.Attempt = a
		out = append(out, h)
	}
	return out, rows.Err()
}
