package school

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/session"
)

var (
	ErrSchoolNotFound  = apierr.New(apierr.KindNotFound, "school_not_found", "school not found")
	ErrClassNotFound   = apierr.New(apierr.KindNotFound, "class_not_found", "class not found")
	ErrProfileNotFound = apierr.New(apierr.KindNotFound, "profile_not_found", "profile not found")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(h *sql.DB) *SQLStore { return &SQLStore{db: h} }

func (s *SQLStore) CreateSchool(ctx context.Context, in NewSchool) (School, error) {
	sc := School{ID: uuid.NewString(), Name: strings.TrimSpace(in.Name), Address: strings.TrimSpace(in.Address), CreatedAt: time.Now().UTC().Truncate(time.Second)}
	_, err := s.db.ExecContext(ctx, `INSERT INTO schools (id, name, address, created_at) VALUES ($1,$2,$3,$4)`,
		sc.ID, sc.Name, sc.Address, sc.CreatedAt.Unix())
	return sc, err
}

func (s *SQLStore) GetSchool(ctx context.Context, id string) (School, error) {
	var (
		sc      School
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, address, created_at FROM schools WHERE id=$1`, id).
		Scan(&sc.ID, &sc.Name, &sc.Address, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return School{}, ErrSchoolNotFound
	}
	sc.CreatedAt = db.TimeOf(created)
	return sc, err
}

func (s *SQLStore) ListSchools(ctx context.Context) ([]School, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address, created_at FROM schools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []School{}
	for rows.Next() {
		var (
			sc      School
			created int64
		)
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Address, &created); err != nil {
			return nil, err
		}
		sc.CreatedAt = db.TimeOf(created)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteSchool(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schools WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSchoolNotFound
	}
	return nil
}

func (s *SQLStore) CreateClass(ctx context.Context, in NewClass) (Class, error) {
	c := Class{
		ID: uuid.NewString(), Name: strings.TrimSpace(in.Name), Grade: in.Grade, Subject: strings.TrimSpace(in.Subject),
		AcademicYear: in.AcademicYear, SchoolID: in.SchoolID, TeacherID: in.TeacherID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classes (id, name, grade, subject, academic_year, school_id, teacher_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.Name, c.Grade, c.Subject, c.AcademicYear, c.SchoolID, c.TeacherID, c.CreatedAt.Unix())
	return c, err
}

const classCols = `id, name, grade, subject, academic_year, school_id, teacher_id, created_at`

func scanClass(sc interface{ Scan(...any) error }) (Class, error) {
	var (
		c       Class
		created int64
	)
	err := sc.Scan(&c.ID, &c.Name, &c.Grade, &c.Subject, &c.AcademicYear, &c.SchoolID, &c.TeacherID, &created)
	c.CreatedAt = db.TimeOf(created)
	return c, err
}

func (s *SQLStore) GetClass(ctx context.Context, id string) (Class, error) {
	c, err := scanClass(s.db.QueryRowContext(ctx, `SELECT `+classCols+` FROM classes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, ErrClassNotFound
	}
	return c, err
}

// ListClasses filters by school and, when set, by owning teacher.
func (s *SQLStore) ListClasses(ctx context.Context, schoolID, teacherID string) ([]Class, error) {
	q := `SELECT ` + classCols + ` FROM classes WHERE 1=1`
	var args []any
	if schoolID != "" {
		args = append(args, schoolID)
		q += ` AND school_id=$` + strconv.Itoa(len(args))
	}
	if teacherID != "" {
		args = append(args, teacherID)
		q += ` AND teacher_id=$` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY grade, name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const profileSelect = `SELECT p.id, p.user_id, u.email, p.role, COALESCE(p.school_id, ''),
       p.first_name, p.last_name, p.class_name, p.created_at
  FROM profiles p JOIN users u ON u.id = p.user_id`

func scanProfile(sc interface{ Scan(...any) error }) (Profile, error) {
	var (
		p       Profile
		role    string
		created int64
	)
	err := sc.Scan(&p.ID, &p.UserID, &p.Email, &role, &p.SchoolID, &p.FirstName, &p.LastName, &p.ClassName, &created)
	p.Role = session.Role(role)
	p.CreatedAt = db.TimeOf(created)
	return p, err
}

func (s *SQLStore) ProfileByUserID(ctx context.Context, userID string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, profileSelect+` WHERE p.user_id=$1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	return p, err
}

func (s *SQLStore) ProfileByID(ctx context.Context, id string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, profileSelect+` WHERE p.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	return p, err
}

func (s *SQLStore) ListProfiles(ctx context.Context, f ProfileFilter) ([]Profile, error) {
	q := profileSelect + ` WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		q += ` AND ` + cond + `$` + strconv.Itoa(len(args))
	}
	if f.SchoolID != "" {
		add("p.school_id=", f.SchoolID)
	}
	if f.Role != "" {
		add("p.role=", string(f.Role))
	}
	if f.ClassName != "" {
		add("p.class_name=", f.ClassName)
	}
	q += ` ORDER BY p.last_name, p.first_name, p.id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StudentsInClass resolves class membership by the class name recorded on
// student profiles of the class's school.
func (s *SQLStore) StudentsInClass(ctx context.Context, classID string) ([]Profile, error) {
	c, err := s.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return s.ListProfiles(ctx, ProfileFilter{SchoolID: c.SchoolID, Role: session.RoleStudent, ClassName: c.Name})
}
