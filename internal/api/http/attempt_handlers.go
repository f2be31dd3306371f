package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/attempt"
	"github.com/mind-engage/schooltests/internal/exam"
)

type assignedRow struct {
	exam.AssignedTest
	CanStart bool `json:"can_start"`
}

type studentDashboard struct {
	Tests   []assignedRow         `json:"tests"`
	History []attempt.HistoryItem `json:"history"`
}

// StudentDashboardHandler loads the assigned tests and the results history together.
func StudentDashboardHandler(tests *exam.Service, attempts *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var (
			assigned []exam.AssignedTest
			history  []attempt.HistoryItem
		)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			var err error
			assigned, err = tests.ListAssigned(ctx, s)
			return err
		})
		g.Go(func() error {
			var err error
			history, err = attempts.History(ctx, s)
			return err
		})
		if err := g.Wait(); err != nil {
			apierr.Write(w, r, err)
			return
		}
		out := studentDashboard{Tests: make([]assignedRow, 0, len(assigned)), History: history}
		for _, a := range assigned {
			out.Tests = append(out.Tests, assignedRow{AssignedTest: a, CanStart: a.CanStart()})
		}
		if out.History == nil {
			out.History = []attempt.HistoryItem{}
		}
		writeJSON(w, out)
	}
}

func StartAttemptHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var req struct {
			TestID string `json:"test_id" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		e, err := m.Start(r.Context(), s, req.TestID)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, e.View())
	}
}

// GetAttemptHandler serves the live view while the attempt runs, the stored
// result afterwards.
func GetAttemptHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		id := chi.URLParam(r, "attemptID")
		if e, ok := m.Lookup(s, id); ok {
			writeJSON(w, e.View())
			return
		}
		res, err := m.Result(r.Context(), s, id)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, res)
	}
}

type answerRequest struct {
	QuestionID string  `json:"question_id" validate:"required"`
	OptionID   *string `json:"option_id"`
	Text       *string `json:"text" validate:"omitempty,max=10000"`
}

func SaveAnswerHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		e, ok := m.Lookup(s, chi.URLParam(r, "attemptID"))
		if !ok {
			apierr.Write(w, r, attempt.ErrAttemptNotFound)
			return
		}
		var req answerRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		switch {
		case req.OptionID != nil:
			err = e.Answer(req.QuestionID, *req.OptionID)
		case req.Text != nil:
			err = e.AnswerText(req.QuestionID, *req.Text)
		default:
			err = apierr.Validation("invalid answer", "option_id or text is required")
		}
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, e.View())
	}
}

func MoveCursorHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		e, ok := m.Lookup(s, chi.URLParam(r, "attemptID"))
		if !ok {
			apierr.Write(w, r, attempt.ErrAttemptNotFound)
			return
		}
		var req struct {
			Action string `json:"action" validate:"required,oneof=next prev goto"`
			Index  int    `json:"index"`
		}
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		var c int
		switch req.Action {
		case "next":
			c = e.Next()
		case "prev":
			c = e.Prev()
		default:
			c = e.Goto(req.Index)
		}
		writeJSON(w, map[string]int{"cursor": c})
	}
}

// SubmitAttemptHandler is idempotent: submitting an attempt that already
// completed returns the stored result.
func SubmitAttemptHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		id := chi.URLParam(r, "attemptID")
		if e, ok := m.Lookup(s, id); ok {
			res, err := e.Submit(r.Context())
			if err != nil {
				apierr.Write(w, r, err)
				return
			}
			writeJSON(w, res)
			return
		}
		res, err := m.Result(r.Context(), s, id)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if !res.Attempt.IsCompleted {
			apierr.Write(w, r, attempt.ErrNotInProgress)
			return
		}
		writeJSON(w, res)
	}
}

func AbandonAttemptHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if err := m.Abandon(s, chi.URLParam(r, "attemptID")); err != nil {
			apierr.Write(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HistoryHandler(m *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out, err := m.History(r.Context(), s)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if out == nil {
			out = []attempt.HistoryItem{}
		}
		writeJSON(w, out)
	}
}
