package exam

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db"
)

var (
	ErrTestNotFound = apierr.New(apierr.KindNotFound, "test_not_found", "test not found")
	ErrTestIDTaken  = apierr.New(apierr.KindConflict, "test_id_taken", "a different test already uses this id")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(h *sql.DB) *SQLStore { return &SQLStore{db: h} }

// CreateTestGraph writes the test, its questions and options in one
// transaction. If a test with the same id and owner exists it is returned
// unchanged with created=false.
func (s *SQLStore) CreateTestGraph(ctx context.Context, t Test) (Test, bool, error) {
	created := false
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT teacher_id FROM tests WHERE id=$1`, t.ID).Scan(&owner)
		if err == nil {
			if owner != t.TeacherID {
				return ErrTestIDTaken
			}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		var class sql.NullString
		if t.ClassID != "" {
			class = sql.NullString{String: t.ClassID, Valid: true}
		}
		var limit sql.NullInt64
		if t.TimeLimitMinutes != nil {
			limit = sql.NullInt64{Int64: int64(*t.TimeLimitMinutes), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tests (id, title, description, subject, teacher_id, school_id, class_id, quarter, academic_year,
			                    total_questions, time_limit_minutes, is_active, allow_retake, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			t.ID, t.Title, t.Description, t.Subject, t.TeacherID, t.SchoolID, class, t.Quarter, t.AcademicYear,
			len(t.Questions), limit, t.IsActive, t.AllowRetake, t.CreatedAt.Unix()); err != nil {
			return err
		}
		for _, q := range t.Questions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO questions (id, test_id, question_text, question_order, question_type, points)
				 VALUES ($1,$2,$3,$4,$5,$6)`,
				q.ID, t.ID, q.Text, q.Order, string(q.Type), q.Points); err != nil {
				return err
			}
			for _, o := range q.Options {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO question_options (id, question_id, option_text, option_order, is_correct)
					 VALUES ($1,$2,$3,$4,$5)`,
					o.ID, q.ID, o.Text, o.Order, o.IsCorrect); err != nil {
					return err
				}
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return Test{}, false, err
	}
	out, err := s.GetTest(ctx, t.ID)
	return out, created, err
}

const testCols = `id, title, description, subject, teacher_id, school_id, COALESCE(class_id, ''), quarter, academic_year,
       total_questions, time_limit_minutes, is_active, allow_retake, created_at`

func scanTest(sc interface{ Scan(...any) error }, extra ...any) (Test, error) {
	var (
		t       Test
		limit   sql.NullInt64
		created int64
	)
	dest := []any{&t.ID, &t.Title, &t.Description, &t.Subject, &t.TeacherID, &t.SchoolID, &t.ClassID, &t.Quarter,
		&t.AcademicYear, &t.TotalQuestions, &limit, &t.IsActive, &t.AllowRetake, &created}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return Test{}, err
	}
	if limit.Valid {
		n := int(limit.Int64)
		t.TimeLimitMinutes = &n
	}
	t.CreatedAt = db.TimeOf(created)
	return t, nil
}

// GetTest loads the full graph, questions and options in order.
func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := scanTest(s.db.QueryRowContext(ctx, `SELECT `+testCols+` FROM tests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, ErrTestNotFound
	}
	if err != nil {
		return Test{}, err
	}

	qs, err := s.questions(ctx, id)
	if err != nil {
		return Test{}, err
	}
	opts, err := s.options(ctx, id)
	if err != nil {
		return Test{}, err
	}
	for i := range qs {
		qs[i].Options = opts[qs[i].ID]
	}
	t.Questions = qs
	return t, nil
}

func (s *SQLStore) questions(ctx context.Context, testID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, question_text, question_order, question_type, points
		   FROM questions WHERE test_id=$1 ORDER BY question_order`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var (
			q  Question
			qt string
		)
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Order, &qt, &q.Points); err != nil {
			return nil, err
		}
		q.Type = QuestionType(qt)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) options(ctx context.Context, testID string) (map[string][]Option, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.option_order, o.is_correct
		   FROM question_options o JOIN questions q ON q.id = o.question_id
		  WHERE q.test_id=$1 ORDER BY q.question_order, o.option_order`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]Option{}
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Order, &o.IsCorrect); err != nil {
			return nil, err
		}
		out[o.QuestionID] = append(out[o.QuestionID], o)
	}
	return out, rows.Err()
}

// ListTests returns test headers without questions, newest first.
func (s *SQLStore) ListTests(ctx context.Context, f TestFilter) ([]Test, error) {
	q := `SELECT ` + testCols + ` FROM tests WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		q += ` AND ` + cond + `$` + strconv.Itoa(len(args))
	}
	if f.SchoolID != "" {
		add("school_id=", f.SchoolID)
	}
	if f.TeacherID != "" {
		add("teacher_id=", f.TeacherID)
	}
	if f.ClassID != "" {
		add("class_id=", f.ClassID)
	}
	if f.ActiveOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY created_at DESC, title`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tests SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTestNotFound
	}
	return nil
}

// DeleteTest removes a test graph. Only the combine compensation path uses it.
func (s *SQLStore) DeleteTest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id=$1`, id)
	return err
}

// Assign links students to a test; existing links are kept. Returns the number of new links.
func (s *SQLStore) Assign(ctx context.Context, testID string, studentIDs []string, due *time.Time) (int, error) {
	added := 0
	now := time.Now().Unix()
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, sid := range studentIDs {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO test_assignments (id, test_id, student_id, assigned_at, due_date)
				 VALUES ($1,$2,$3,$4,$5)
				 ON CONFLICT (test_id, student_id) DO NOTHING`,
				uuid.NewString(), testID, sid, now, db.NullUnix(due))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *SQLStore) HasAssignment(ctx context.Context, testID, studentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM test_assignments WHERE test_id=$1 AND student_id=$2`, testID, studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) ListAssignments(ctx context.Context, testID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, student_id, assigned_at, due_date FROM test_assignments
		  WHERE test_id=$1 ORDER BY assigned_at, student_id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Assignment{}
	for rows.Next() {
		var (
			a        Assignment
			assigned int64
			due      sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.TestID, &a.StudentID, &assigned, &due); err != nil {
			return nil, err
		}
		a.AssignedAt = db.TimeOf(assigned)
		a.DueDate = db.TimePtr(due)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssignedForStudent returns active assigned tests with the student's completion status.
func (s *SQLStore) ListAssignedForStudent(ctx context.Context, studentID string) ([]AssignedTest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.description, t.subject, t.teacher_id, t.school_id, COALESCE(t.class_id, ''), t.quarter,
		        t.academic_year, t.total_questions, t.time_limit_minutes, t.is_active, t.allow_retake, t.created_at,
		        a.assigned_at, a.due_date,
		        (SELECT COUNT(*) FROM test_attempts x
		          WHERE x.test_id = t.id AND x.student_id = a.student_id AND x.is_completed),
		        (SELECT x.percentage_score FROM test_attempts x
		          WHERE x.test_id = t.id AND x.student_id = a.student_id AND x.is_completed
		          ORDER BY x.completed_at DESC LIMIT 1)
		   FROM test_assignments a JOIN tests t ON t.id = a.test_id
		  WHERE a.student_id=$1 AND t.is_active
		  ORDER BY a.assigned_at DESC, t.title`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AssignedTest{}
	for rows.Next() {
		var (
			at       AssignedTest
			assigned int64
			due      sql.NullInt64
			last     sql.NullFloat64
		)
		t, err := scanTest(rows, &assigned, &due, &at.Completed, &last)
		if err != nil {
			return nil, err
		}
		at.Test = t
		at.AssignedAt = db.TimeOf(assigned)
		at.DueDate = db.TimePtr(due)
		if last.Valid {
			v := last.Float64
			at.LastPercentage = &v
		}
		out = append(out, at)
	}
	return out, rows.Err()
}
