package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/exam"
)

// testSummary is a test without its question graph.
type testSummary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	TeacherID        string    `json:"teacher_id"`
	SchoolID         string    `json:"school_id"`
	ClassID          string    `json:"class_id,omitempty"`
	Quarter          string    `json:"quarter,omitempty"`
	AcademicYear     string    `json:"academic_year,omitempty"`
	TotalQuestions   int       `json:"total_questions"`
	TimeLimitMinutes *int      `json:"time_limit_minutes,omitempty"`
	IsActive         bool      `json:"is_active"`
	AllowRetake      bool      `json:"allow_retake"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateTestHandler takes the full draft; validation happens in the service
// so that every problem is reported together.
func CreateTestHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var d exam.Draft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			apierr.Write(w, r, apierr.Validation("invalid JSON body"))
			return
		}
		t, err := svc.CreateTest(r.Context(), s, d)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, t)
	}
}

// ListTestsHandler: ?class_id=&teacher_id=&active=1
func ListTestsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		q := r.URL.Query()
		tests, err := svc.ListTests(r.Context(), s, exam.TestFilter{
			ClassID:    q.Get("class_id"),
			TeacherID:  q.Get("teacher_id"),
			ActiveOnly: q.Get("active") == "1" || q.Get("active") == "true",
		})
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out, err := mapTo[[]testSummary](&tests)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if out == nil {
			out = []testSummary{}
		}
		writeJSON(w, out)
	}
}

func GetTestHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		t, err := svc.GetTest(r.Context(), s, chi.URLParam(r, "testID"))
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, t)
	}
}

func SetTestActiveHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var req struct {
			Active *bool `json:"is_active" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		if err := svc.SetActive(r.Context(), s, chi.URLParam(r, "testID"), *req.Active); err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, map[string]bool{"is_active": *req.Active})
	}
}

func AssignTestHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var req exam.AssignRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		n, err := svc.Assign(r.Context(), s, chi.URLParam(r, "testID"), req)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, map[string]int{"assigned": n})
	}
}

func ListAssignmentsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out, err := svc.ListAssignments(r.Context(), s, chi.URLParam(r, "testID"))
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if out == nil {
			out = []exam.Assignment{}
		}
		writeJSON(w, out)
	}
}

func CombineTestsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var req exam.CombineRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		t, n, err := svc.Combine(r.Context(), s, req)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, map[string]any{"test": t, "assigned": n})
	}
}
