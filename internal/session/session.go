// Package session holds the caller identity that every component receives explicitly.
package session

import (
	"context"
	"strings"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSchoolAdmin Role = "school_admin"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSchoolAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Session is who the caller is and what they may touch.
type Session struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	SchoolID  string `json:"school_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ClassName string `json:"class_name,omitempty"`
	TokenID   string `json:"-"`
}

func (s Session) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// SchoolScope is the tenant filter for queries: empty means every school (top-level admin only).
func (s Session) SchoolScope() string {
	if s.Role == RoleAdmin {
		return ""
	}
	return s.SchoolID
}

// CanActInSchool reports whether the caller may touch rows of schoolID.
func (s Session) CanActInSchool(schoolID string) bool {
	if s.Role == RoleAdmin {
		return true
	}
	return s.SchoolID != "" && s.SchoolID == schoolID
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
