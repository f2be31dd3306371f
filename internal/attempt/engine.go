package attempt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/exam"
	"github.com/mind-engage/schooltests/internal/grading"
)

// Engine drives one student's attempt. Answers live in memory until Submit;
// Submit and countdown expiry share one code path and run at most once.
type Engine struct {
	id      string
	student string

	mu        sync.Mutex
	attempt   Attempt
	test      exam.Test
	answers   map[string]grading.Response
	cursor    int
	remaining int // seconds left; -1 when untimed
	state     State
	result    *Result

	store  Store
	grader grading.Grader
	now    func() time.Time

	done    chan struct{} // closed on completion
	stopped chan struct{} // closed on abandon
}

func newEngine(a Attempt, t exam.Test, st Store, g grading.Grader, now func() time.Time) *Engine {
	e := &Engine{
		id:        a.ID,
		student:   a.StudentID,
		attempt:   a,
		test:      t,
		answers:   map[string]grading.Response{},
		remaining: -1,
		state:     StateInProgress,
		store:     st,
		grader:    g,
		now:       now,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if lim := t.TimeLimit(); lim > 0 {
		e.remaining = int(lim / time.Second)
	}
	return e
}

func (e *Engine) ID() string { return e.id }

// Done is closed once the attempt is completed.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) question(id string) (exam.Question, error) {
	for _, q := range e.test.Questions {
		if q.ID == id {
			return q, nil
		}
	}
	return exam.Question{}, apierr.Validation("unknown question", id+" is not part of this test")
}

// writable reports whether answers may still change. Caller holds mu.
func (e *Engine) writable() error {
	switch {
	case e.state == StateCompleted:
		return ErrAlreadyCompleted
	case e.state != StateInProgress:
		return ErrNotInProgress
	case e.remaining == 0:
		return ErrTimeUp
	}
	return nil
}

// Answer records or overwrites the selected option. An empty optionID clears it.
func (e *Engine) Answer(questionID, optionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	q, err := e.question(questionID)
	if err != nil {
		return err
	}
	if !q.Type.HasOptions() {
		return apierr.Validation("invalid answer", "question takes a text answer")
	}
	if optionID == "" {
		delete(e.answers, questionID)
		return nil
	}
	if _, ok := q.Option(optionID); !ok {
		return apierr.Validation("invalid answer", "option does not belong to the question")
	}
	e.answers[questionID] = grading.Response{OptionID: optionID}
	return nil
}

// AnswerText records a free-text answer.
func (e *Engine) AnswerText(questionID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	q, err := e.question(questionID)
	if err != nil {
		return err
	}
	if q.Type != exam.TypeFreeText {
		return apierr.Validation("invalid answer", "question takes a selected option")
	}
	if strings.TrimSpace(text) == "" {
		delete(e.answers, questionID)
		return nil
	}
	e.answers[questionID] = grading.Response{Text: text}
	return nil
}

func (e *Engine) Next() int { return e.move(func(c int) int { return c + 1 }) }
func (e *Engine) Prev() int { return e.move(func(c int) int { return c - 1 }) }

// Goto moves the cursor to a 0-based question index, clamped to the test.
func (e *Engine) Goto(i int) int { return e.move(func(int) int { return i }) }

func (e *Engine) move(f func(int) int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := f(e.cursor)
	if last := len(e.test.Questions) - 1; c > last {
		c = last
	}
	if c < 0 {
		c = 0
	}
	e.cursor = c
	return c
}

// Tick advances the countdown by one second and submits when it reaches
// zero. It returns true once the countdown has nothing left to do.
func (e *Engine) Tick(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress || e.remaining < 0 {
		return true
	}
	if e.remaining == 0 {
		return true
	}
	e.remaining--
	if e.remaining > 0 {
		return false
	}
	if _, err := e.submitLocked(ctx); err != nil {
		log.Error().Err(err).Str("attempt_id", e.attempt.ID).Msg("auto-submit on time expiry failed")
	}
	return true
}

// Submit grades and persists the attempt. Calling it again after success
// returns the same result without writing.
func (e *Engine) Submit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(ctx)
}

func (e *Engine) submitLocked(ctx context.Context) (Result, error) {
	switch e.state {
	case StateCompleted:
		return *e.result, nil
	case StateAbandoned:
		return Result{}, ErrNotInProgress
	}

	sc, err := grading.ScoreAttempt(ctx, e.grader, e.test, e.answers)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.KindValidation, "grading_failed", "the answers could not be graded", err)
	}
	a := e.attempt
	now := e.now().UTC().Truncate(time.Second)
	a.CompletedAt = &now
	a.IsCompleted = true
	a.TotalScore = sc.Total
	a.MaxScore = sc.Max
	a.Percentage = sc.Percentage

	err = e.store.CompleteAttempt(ctx, a, sc.Answers)
	switch {
	case err == nil:
		e.finish(Result{Attempt: a, Answers: sc.Answers})
		log.Info().Str("attempt_id", a.ID).Str("test_id", a.TestID).
			Float64("total", a.TotalScore).Float64("max", a.MaxScore).Float64("pct", a.Percentage).
			Msg("attempt submitted")
	case errors.Is(err, ErrAlreadyCompleted):
		r, lerr := e.store.Result(ctx, a.ID)
		if lerr != nil {
			return Result{}, apierr.Upstream("could not load the submitted attempt", lerr)
		}
		e.finish(r)
	default:
		return Result{}, apierr.Upstream("your answers could not be saved, please submit again", err)
	}
	return *e.result, nil
}

// finish records the result. Caller holds mu.
func (e *Engine) finish(r Result) {
	e.attempt = r.Attempt
	e.result = &r
	e.state = StateCompleted
	close(e.done)
}

// abandon drops the in-memory state without writing anything.
func (e *Engine) abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress {
		return
	}
	e.state = StateAbandoned
	close(e.stopped)
}

// run drives Tick from ticks until the attempt ends.
func (e *Engine) run(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-e.stopped:
			return
		case <-ticks:
			if e.Tick(ctx) {
				return
			}
		}
	}
}

// View is a student-safe snapshot of the engine.
type View struct {
	AttemptID        string                      `json:"attempt_id"`
	TestID           string                      `json:"test_id"`
	Title            string                      `json:"title"`
	State            State                       `json:"state"`
	Cursor           int                         `json:"cursor"`
	Questions        []exam.Question             `json:"questions"`
	Answers          map[string]grading.Response `json:"answers"`
	RemainingSeconds *int                        `json:"remaining_seconds,omitempty"`
	StartedAt        time.Time                   `json:"started_at"`
	DeadlineAt       *time.Time                  `json:"deadline_at,omitempty"`
	Result           *Result                     `json:"result,omitempty"`
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		AttemptID:  e.attempt.ID,
		TestID:     e.test.ID,
		Title:      e.test.Title,
		State:      e.state,
		Cursor:     e.cursor,
		Questions:  e.test.Redacted().Questions,
		Answers:    make(map[string]grading.Response, len(e.answers)),
		StartedAt:  e.attempt.StartedAt,
		DeadlineAt: e.attempt.DeadlineAt,
	}
	for k, r := range e.answers {
		v.Answers[k] = r
	}
	if e.remaining >= 0 {
		rem := e.remaining
		v.RemainingSeconds = &rem
	}
	if e.result != nil {
		r := *e.result
		v.Result = &r
	}
	return v
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
