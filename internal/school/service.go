package school

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/session"
)

var validate = validator.New()

var errForbidden = apierr.New(apierr.KindForbidden, "forbidden", "not allowed in this school")

// Service applies tenant rules on top of SQLStore.
type Service struct {
	Store *SQLStore
}

func NewService(st *SQLStore) *Service { return &Service{Store: st} }

func (s *Service) CreateSchool(ctx context.Context, sess session.Session, in NewSchool) (School, error) {
	if sess.Role != session.RoleAdmin {
		return School{}, errForbidden
	}
	if err := validate.Struct(in); err != nil {
		return School{}, apierr.Validation("invalid school", err.Error())
	}
	return s.Store.CreateSchool(ctx, in)
}

func (s *Service) ListSchools(ctx context.Context, sess session.Session) ([]School, error) {
	if sess.Role == session.RoleAdmin {
		return s.Store.ListSchools(ctx)
	}
	if sess.SchoolID == "" {
		return []School{}, nil
	}
	sc, err := s.Store.GetSchool(ctx, sess.SchoolID)
	if err != nil {
		return nil, err
	}
	return []School{sc}, nil
}

func (s *Service) DeleteSchool(ctx context.Context, sess session.Session, id string) error {
	if sess.Role != session.RoleAdmin {
		return errForbidden
	}
	return s.Store.DeleteSchool(ctx, id)
}

// CreateClass lets admins and school admins open a class for a teacher of the same school.
func (s *Service) CreateClass(ctx context.Context, sess session.Session, in NewClass) (Class, error) {
	if in.SchoolID == "" {
		in.SchoolID = sess.SchoolID
	}
	if err := validate.Struct(in); err != nil {
		return Class{}, apierr.Validation("invalid class", err.Error())
	}
	if in.SchoolID == "" {
		return Class{}, apierr.Validation("invalid class", "school_id is required")
	}
	if sess.Role != session.RoleAdmin && sess.Role != session.RoleSchoolAdmin {
		return Class{}, errForbidden
	}
	if !sess.CanActInSchool(in.SchoolID) {
		return Class{}, errForbidden
	}
	t, err := s.Store.ProfileByID(ctx, in.TeacherID)
	if err != nil {
		return Class{}, err
	}
	if t.Role != session.RoleTeacher || t.SchoolID != in.SchoolID {
		return Class{}, apierr.Validation("invalid class", "teacher_id must be a teacher of the same school")
	}
	return s.Store.CreateClass(ctx, in)
}

// ListClasses scopes to the caller: teachers see their own classes.
func (s *Service) ListClasses(ctx context.Context, sess session.Session) ([]Class, error) {
	switch sess.Role {
	case session.RoleTeacher:
		return s.Store.ListClasses(ctx, sess.SchoolID, sess.ProfileID)
	case session.RoleStudent:
		return nil, errForbidden
	}
	return s.Store.ListClasses(ctx, sess.SchoolScope(), "")
}

// GetClass returns a class the caller may see.
func (s *Service) GetClass(ctx context.Context, sess session.Session, id string) (Class, error) {
	c, err := s.Store.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if !sess.CanActInSchool(c.SchoolID) || sess.Role == session.RoleStudent {
		return Class{}, ErrClassNotFound
	}
	if sess.Role == session.RoleTeacher && c.TeacherID != sess.ProfileID {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

// ListUsers lists profiles of the caller's school; top-level admins may pass any school.
func (s *Service) ListUsers(ctx context.Context, sess session.Session, f ProfileFilter) ([]Profile, error) {
	switch sess.Role {
	case session.RoleAdmin:
	case session.RoleSchoolAdmin:
		f.SchoolID = sess.SchoolID
	case session.RoleTeacher:
		f.SchoolID = sess.SchoolID
		f.Role = session.RoleStudent
	default:
		return nil, errForbidden
	}
	return s.Store.ListProfiles(ctx, f)
}
