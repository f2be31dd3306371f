package school

import (
	"time"

	"github.com/mind-engage/schooltests/internal/session"
)

type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Grade        int       `json:"grade"`
	Subject      string    `json:"subject,omitempty"`
	AcademicYear string    `json:"academic_year"`
	SchoolID     string    `json:"school_id"`
	TeacherID    string    `json:"teacher_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the per-user record carrying role and tenant.
type Profile struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	Role      session.Role `json:"role"`
	SchoolID  string       `json:"school_id,omitempty"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	ClassName string       `json:"class_name,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p Profile) Session() session.Session {
	return session.Session{
		UserID:    p.UserID,
		ProfileID: p.ID,
		Email:     p.Email,
		Role:      p.Role,
		SchoolID:  p.SchoolID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		ClassName: p.ClassName,
	}
}

type ProfileFilter struct {
	SchoolID  string
	Role      session.Role
	ClassName string
	Limit     int
	Offset    int
}

type NewSchool struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

type NewClass struct {
	Name         string `json:"name" validate:"required,max=50"`
	Grade        int    `json:"grade" validate:"gte=0,lte=12"`
	Subject      string `json:"subject" validate:"max=100"`
	AcademicYear string `json:"academic_year" validate:"required"`
	SchoolID     string `json:"school_id"`
	TeacherID    string `json:"teacher_id" validate:"required"`
}
