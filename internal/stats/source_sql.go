package stats

import (
	"context"
	"database/sql"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/grading"
	"github.com/mind-engage/schooltests/internal/session"
)

type Filter struct {
	SchoolID     string
	TeacherID    string
	ClassName    string
	TestID       string
	Quarter      string
	AcademicYear string
}

var errStudentsForbidden = apierr.New(apierr.KindForbidden, "forbidden", "statistics are for staff only")

// Scope narrows f to what the caller may see.
func Scope(sess session.Session, f Filter) (Filter, error) {
	switch sess.Role {
	case session.RoleAdmin:
	case session.RoleSchoolAdmin:
		f.SchoolID = sess.SchoolID
	case session.RoleTeacher:
		f.SchoolID = sess.SchoolID
		f.TeacherID = sess.ProfileID
	default:
		return Filter{}, errStudentsForbidden
	}
	return f, nil
}

type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(h *sql.DB) *SQLSource { return &SQLSource{db: h} }

// Records returns completed attempts in completion order, the order the
// subject fold consumes them in.
func (s *SQLSource) Records(ctx context.Context, f Filter) ([]AttemptRecord, error) {
	q := `SELECT a.id, a.test_id, t.title, t.subject, t.teacher_id, t.school_id,
	             p.id, p.first_name, p.last_name, p.class_name,
	             a.total_score, a.max_score, a.percentage_score, a.completed_at, a.quarter, a.academic_year
	        FROM test_attempts a
	        JOIN tests t ON t.id = a.test_id
	        JOIN profiles p ON p.id = a.student_id
	       WHERE a.is_completed`
	var args []any
	add := func(cond, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		q += ` AND ` + cond + `$` + strconv.Itoa(len(args))
	}
	add("t.school_id=", f.SchoolID)
	add("t.teacher_id=", f.TeacherID)
	add("p.class_name=", f.ClassName)
	add("a.test_id=", f.TestID)
	add("a.quarter=", f.Quarter)
	add("a.academic_year=", f.AcademicYear)
	q += ` ORDER BY a.completed_at, a.started_at, a.id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptRecord{}
	for rows.Next() {
		var (
			r         AttemptRecord
			completed sql.NullInt64
		)
		if err := rows.Scan(&r.AttemptID, &r.TestID, &r.TestTitle, &r.Subject, &r.TeacherID, &r.SchoolID,
			&r.StudentID, &r.FirstName, &r.LastName, &r.ClassName,
			&r.TotalScore, &r.MaxScore, &r.Percentage, &completed, &r.Quarter, &r.AcademicYear); err != nil {
			return nil, err
		}
		if completed.Valid {
			r.CompletedAt = db.TimeOf(completed.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type SchoolSummary struct {
	Students          int     `json:"students"`
	Teachers          int     `json:"teachers"`
	Tests             int     `json:"tests"`
	ActiveTests       int     `json:"active_tests"`
	CompletedAttempts int     `json:"completed_attempts"`
	AveragePercentage float64 `json:"average_percentage"`
}

// Summary loads the dashboard counters concurrently. An empty schoolID
// counts every school.
func (s *SQLSource) Summary(ctx context.Context, schoolID string) (SchoolSummary, error) {
	var out SchoolSummary
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int, q string, args ...any) {
		g.Go(func() error {
			return s.db.QueryRowContext(ctx, q, args...).Scan(dst)
		})
	}
	if schoolID == "" {
		count(&out.Students, `SELECT COUNT(*) FROM profiles WHERE role='student'`)
		count(&out.Teachers, `SELECT COUNT(*) FROM profiles WHERE role='teacher'`)
		count(&out.Tests, `SELECT COUNT(*) FROM tests`)
		count(&out.ActiveTests, `SELECT COUNT(*) FROM tests WHERE is_active`)
	} else {
		count(&out.Students, `SELECT COUNT(*) FROM profiles WHERE role='student' AND school_id=$1`, schoolID)
		count(&out.Teachers, `SELECT COUNT(*) FROM profiles WHERE role='teacher' AND school_id=$1`, schoolID)
		count(&out.Tests, `SELECT COUNT(*) FROM tests WHERE school_id=$1`, schoolID)
		count(&out.ActiveTests, `SELECT COUNT(*) FROM tests WHERE is_active AND school_id=$1`, schoolID)
	}
	g.Go(func() error {
		recs, err := s.Records(ctx, Filter{SchoolID: schoolID})
		if err != nil {
			return err
		}
		out.CompletedAttempts = len(recs)
		out.AveragePercentage = SchoolAverage(RollupStudents(recs))
		return nil
	})
	if err := g.Wait(); err != nil {
		return SchoolSummary{}, err
	}
	out.AveragePercentage = grading.Round1(out.AveragePercentage)
	return out, nil
}
