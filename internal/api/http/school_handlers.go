package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

func ListSchoolsHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out, err := svc.ListSchools(r.Context(), s)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}

func CreateSchoolHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var in school.NewSchool
		if err := decode(r, &in); err != nil {
			apierr.Write(w, r, err)
			return
		}
		sc, err := svc.CreateSchool(r.Context(), s, in)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, sc)
	}
}

func DeleteSchoolHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if err := svc.DeleteSchool(r.Context(), s, chi.URLParam(r, "schoolID")); err != nil {
			apierr.Write(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// userRow is the list shape of a profile.
type userRow struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	Role      session.Role `json:"role"`
	SchoolID  string       `json:"school_id,omitempty"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	ClassName string       `json:"class_name,omitempty"`
}

// ListUsersHandler: ?role=&class_name=&school_id=&limit=&offset=
func ListUsersHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		q := r.URL.Query()
		f := school.ProfileFilter{
			SchoolID:  q.Get("school_id"),
			ClassName: q.Get("class_name"),
			Limit:     queryInt(r, "limit", 500),
			Offset:    queryInt(r, "offset", 0),
		}
		if v := q.Get("role"); v != "" {
			role, ok := session.ParseRole(v)
			if !ok {
				apierr.Write(w, r, apierr.Validation("invalid role", v))
				return
			}
			f.Role = role
		}
		profiles, err := svc.ListUsers(r.Context(), s, f)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		rows, err := mapTo[[]userRow](&profiles)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if rows == nil {
			rows = []userRow{}
		}
		writeJSON(w, rows)
	}
}

func ListClassesHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out, err := svc.ListClasses(r.Context(), s)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if out == nil {
			out = []school.Class{}
		}
		writeJSON(w, out)
	}
}

func GetClassHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		c, err := svc.GetClass(r.Context(), s, chi.URLParam(r, "classID"))
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, c)
	}
}

func CreateClassHandler(svc *school.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var in school.NewClass
		if err := decode(r, &in); err != nil {
			apierr.Write(w, r, err)
			return
		}
		c, err := svc.CreateClass(r.Context(), s, in)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, c)
	}
}
