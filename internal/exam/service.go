package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

type Store interface {
	CreateTestGraph(ctx context.Context, t Test) (Test, bool, error)
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, f TestFilter) ([]Test, error)
	SetActive(ctx context.Context, id string, active bool) error
	DeleteTest(ctx context.Context, id string) error
	Assign(ctx context.Context, testID string, studentIDs []string, due *time.Time) (int, error)
	ListAssignments(ctx context.Context, testID string) ([]Assignment, error)
	ListAssignedForStudent(ctx context.Context, studentID string) ([]AssignedTest, error)
}

// Directory is the slice of the school store this package reads.
type Directory interface {
	GetClass(ctx context.Context, id string) (school.Class, error)
	StudentsInClass(ctx context.Context, classID string) ([]school.Profile, error)
	ProfileByID(ctx context.Context, id string) (school.Profile, error)
}

var (
	errNotAuthor     = apierr.New(apierr.KindForbidden, "forbidden", "only teachers and administrators manage tests")
	errNoProfile     = apierr.New(apierr.KindNotFound, "profile_missing", "your profile could not be found")
	errNoStudents    = apierr.Validation("no students to assign", "the class has no students")
	errCombineSource = apierr.Validation("invalid combination", "at least two source tests are required")
)

type Service struct {
	Store     Store
	Directory Directory
	Events    *syncx.EventRepo
	Now       func() time.Time
}

func NewService(st Store, dir Directory, events *syncx.EventRepo) *Service {
	return &Service{Store: st, Directory: dir, Events: events, Now: time.Now}
}

func canAuthor(s session.Session) error {
	switch s.Role {
	case session.RoleTeacher, session.RoleSchoolAdmin, session.RoleAdmin:
	default:
		return errNotAuthor
	}
	if s.ProfileID == "" {
		return errNoProfile
	}
	return nil
}

// canManage: the owning teacher, or an administrator of the test's school.
func canManage(s session.Session, t Test) bool {
	switch s.Role {
	case session.RoleAdmin:
		return true
	case session.RoleSchoolAdmin:
		return s.SchoolID == t.SchoolID
	case session.RoleTeacher:
		return s.ProfileID == t.TeacherID
	}
	return false
}

// CreateTest validates the draft before anything is written.
func (s *Service) CreateTest(ctx context.Context, sess session.Session, d Draft) (Test, error) {
	if err := canAuthor(sess); err != nil {
		return Test{}, err
	}
	if err := d.Validate(); err != nil {
		return Test{}, err
	}
	schoolID, err := s.resolveSchool(ctx, sess, &d)
	if err != nil {
		return Test{}, err
	}
	t, created, err := s.Store.CreateTestGraph(ctx, d.Build(sess.ProfileID, schoolID, s.Now()))
	if err != nil {
		return Test{}, err
	}
	if created {
		log.Info().Str("test_id", t.ID).Str("teacher_id", t.TeacherID).Int("questions", len(t.Questions)).Msg("test created")
		s.Events.Record(ctx, syncx.NewEvent(syncx.TypeTestCreated, t.ID, map[string]any{"title": t.Title, "teacher_id": t.TeacherID}))
	}
	return t, nil
}

// resolveSchool picks the owning school and fills defaults from the target class.
func (s *Service) resolveSchool(ctx context.Context, sess session.Session, d *Draft) (string, error) {
	schoolID := sess.SchoolID
	if d.ClassID == "" {
		if schoolID == "" {
			return "", apierr.Validation("invalid test", "class_id is required when you have no school")
		}
		return schoolID, nil
	}
	c, err := s.Directory.GetClass(ctx, d.ClassID)
	if err != nil {
		return "", err
	}
	if !sess.CanActInSchool(c.SchoolID) {
		return "", apierr.Validation("invalid test", "class_id belongs to another school")
	}
	if d.AcademicYear == "" {
		d.AcademicYear = c.AcademicYear
	}
	if d.Subject == "" {
		d.Subject = c.Subject
	}
	return c.SchoolID, nil
}

// GetTest returns the full graph, including correct answers, to those who manage it.
func (s *Service) GetTest(ctx context.Context, sess session.Session, id string) (Test, error) {
	t, err := s.Store.GetTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	if !canManage(sess, t) {
		return Test{}, ErrTestNotFound
	}
	return t, nil
}

func (s *Service) ListTests(ctx context.Context, sess session.Session, f TestFilter) ([]Test, error) {
	switch sess.Role {
	case session.RoleTeacher:
		f.TeacherID = sess.ProfileID
		f.SchoolID = sess.SchoolID
	case session.RoleSchoolAdmin:
		f.SchoolID = sess.SchoolID
	case session.RoleAdmin:
	default:
		return nil, errNotAuthor
	}
	return s.Store.ListTests(ctx, f)
}

// SetActive soft-deactivates or re-activates a test.
func (s *Service) SetActive(ctx context.Context, sess session.Session, id string, active bool) error {
	t, err := s.GetTest(ctx, sess, id)
	if err != nil {
		return err
	}
	return s.Store.SetActive(ctx, t.ID, active)
}

type AssignRequest struct {
	StudentIDs []string   `json:"student_ids"`
	ClassID    string     `json:"class_id"`
	DueDate    *time.Time `json:"due_date"`
}

// Assign links the test to explicit students and/or every student of a class.
func (s *Service) Assign(ctx context.Context, sess session.Session, testID string, req AssignRequest) (int, error) {
	t, err := s.GetTest(ctx, sess, testID)
	if err != nil {
		return 0, err
	}
	ids, err := s.resolveStudents(ctx, t.SchoolID, req)
	if err != nil {
		return 0, err
	}
	return s.Store.Assign(ctx, t.ID, ids, req.DueDate)
}

func (s *Service) resolveStudents(ctx context.Context, schoolID string, req AssignRequest) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	if req.ClassID != "" {
		c, err := s.Directory.GetClass(ctx, req.ClassID)
		if err != nil {
			return nil, err
		}
		if c.SchoolID != schoolID {
			return nil, apierr.Validation("invalid assignment", "class belongs to another school")
		}
		members, err := s.Directory.StudentsInClass(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range members {
			if !seen[p.ID] {
				seen[p.ID] = true
				ids = append(ids, p.ID)
			}
		}
	}
	for _, id := range req.StudentIDs {
		if seen[id] {
			continue
		}
		p, err := s.Directory.ProfileByID(ctx, id)
		if err != nil {
			return nil, apierr.Validation("invalid assignment", "unknown student "+id)
		}
		if p.Role != session.RoleStudent || p.SchoolID != schoolID {
			return nil, apierr.Validation("invalid assignment", id+" is not a student of this school")
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errNoStudents
	}
	return ids, nil
}

func (s *Service) ListAssignments(ctx context.Context, sess session.Session, testID string) ([]Assignment, error) {
	if _, err := s.GetTest(ctx, sess, testID); err != nil {
		return nil, err
	}
	return s.Store.ListAssignments(ctx, testID)
}

// ListAssigned is the student's own test list.
func (s *Service) ListAssigned(ctx context.Context, sess session.Session) ([]AssignedTest, error) {
	if sess.ProfileID == "" {
		return nil, errNoProfile
	}
	return s.Store.ListAssignedForStudent(ctx, sess.ProfileID)
}

type CombineRequest struct {
	Title            string     `json:"title" validate:"required,max=200"`
	Description      string     `json:"description" validate:"max=2000"`
	Subject          string     `json:"subject" validate:"max=100"`
	SourceTestIDs    []string   `json:"source_test_ids" validate:"required,min=2,dive,required"`
	ClassID          string     `json:"class_id" validate:"required"`
	Quarter          string     `json:"quarter" validate:"max=20"`
	AcademicYear     string     `json:"academic_year" validate:"max=20"`
	TimeLimitMinutes *int       `json:"time_limit_minutes" validate:"omitempty,gte=1,lte=600"`
	AllowRetake      bool       `json:"allow_retake"`
	DueDate          *time.Time `json:"due_date"`
}

// Combine merges several tests into a new one and assigns it to a class.
// Questions keep their source order, prefixed with the source title. If the
// assignment step fails the new test is deleted again.
func (s *Service) Combine(ctx context.Context, sess session.Session, req CombineRequest) (Test, int, error) {
	if err := canAuthor(sess); err != nil {
		return Test{}, 0, err
	}
	if len(req.SourceTestIDs) < 2 {
		return Test{}, 0, errCombineSource
	}
	d := Draft{
		Title:            req.Title,
		Description:      req.Description,
		Subject:          req.Subject,
		ClassID:          req.ClassID,
		Quarter:          req.Quarter,
		AcademicYear:     req.AcademicYear,
		TimeLimitMinutes: req.TimeLimitMinutes,
		AllowRetake:      req.AllowRetake,
	}
	for _, id := range req.SourceTestIDs {
		src, err := s.GetTest(ctx, sess, id)
		if err != nil {
			return Test{}, 0, err
		}
		d.Questions = append(d.Questions, DraftFrom(src, fmt.Sprintf("[%s] ", src.Title))...)
	}
	if err := d.Validate(); err != nil {
		return Test{}, 0, err
	}
	schoolID, err := s.resolveSchool(ctx, sess, &d)
	if err != nil {
		return Test{}, 0, err
	}
	ids, err := s.resolveStudents(ctx, schoolID, AssignRequest{ClassID: req.ClassID})
	if err != nil {
		return Test{}, 0, err
	}

	t, _, err := s.Store.CreateTestGraph(ctx, d.Build(sess.ProfileID, schoolID, s.Now()))
	if err != nil {
		return Test{}, 0, err
	}
	n, err := s.Store.Assign(ctx, t.ID, ids, req.DueDate)
	if err != nil {
		if derr := s.Store.DeleteTest(ctx, t.ID); derr != nil {
			log.Error().Err(derr).Str("test_id", t.ID).Msg("combine: compensating delete failed")
		}
		return Test{}, 0, apierr.Wrap(apierr.KindInternal, "assign_failed", "could not assign the combined test", err)
	}
	log.Info().Str("test_id", t.ID).Strs("sources", req.SourceTestIDs).Int("assigned", n).Msg("tests combined")
	s.Events.Record(ctx, syncx.NewEvent(syncx.TypeTestCombined, t.ID, map[string]any{"sources": req.SourceTestIDs, "assigned": n}))
	return t, n, nil
}
