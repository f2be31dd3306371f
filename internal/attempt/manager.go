package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mind-engage/schooltests/internal/exam"
	"github.com/mind-engage/schooltests/internal/grading"
	"github.com/mind-engage/schooltests/internal/session"
)

// TestSource is what the manager reads from the test catalogue.
type TestSource interface {
	GetTest(ctx context.Context, id string) (exam.Test, error)
	HasAssignment(ctx context.Context, testID, studentID string) (bool, error)
}

// TickerFunc returns a tick channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Options struct {
	Grader grading.Grader
	// Tick is the countdown period; one tick is one second of test time.
	Tick      time.Duration
	NewTicker TickerFunc
	Now       func() time.Time
}

// Manager owns the live engines of this process.
type Manager struct {
	tests  TestSource
	store  Store
	grader grading.Grader
	tick   time.Duration
	ticker TickerFunc
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	startMu sync.Mutex
	mu      sync.Mutex
	live    map[string]*Engine
}

func NewManager(tests TestSource, st Store, opts Options) *Manager {
	if opts.Grader == nil {
		opts.Grader = grading.NewDefaultGrader()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = realTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tests:  tests,
		store:  st,
		grader: opts.Grader,
		tick:   opts.Tick,
		ticker: opts.NewTicker,
		now:    opts.Now,
		ctx:    ctx,
		cancel: cancel,
		live:   map[string]*Engine{},
	}
}

// Close stops every countdown. Unsubmitted attempts stay incomplete.
func (m *Manager) Close() { m.cancel() }

// Start checks eligibility and opens an attempt. A live engine for the same
// student and test is resumed instead of creating a second attempt.
func (m *Manager) Start(ctx context.Context, sess session.Session, testID string) (*Engine, error) {
	if sess.ProfileID == "" {
		return nil, ErrProfileMissing
	}
	if sess.Role != session.RoleStudent {
		return nil, ErrNotStudent
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	t, err := m.tests.GetTest(ctx, testID)
	if errors.Is(err, exam.ErrTestNotFound) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive || t.SchoolID != sess.SchoolID {
		return nil, ErrTestNotFound
	}
	ok, err := m.tests.HasAssignment(ctx, t.ID, sess.ProfileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssigned
	}
	if !t.AllowRetake {
		n, err := m.store.CountCompleted(ctx, t.ID, sess.ProfileID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, ErrAlreadyCompleted
		}
	}
	open, found, err := m.store.OpenAttempt(ctx, t.ID, sess.ProfileID)
	if err != nil {
		return nil, err
	}
	if found {
		if e := m.engine(open.ID); e != nil {
			return e, nil
		}
		if !t.AllowRetake {
			return nil, ErrAttemptInProgress
		}
	}

	now := m.now().UTC().Truncate(time.Second)
	a := Attempt{
		ID:           uuid.NewString(),
		TestID:       t.ID,
		StudentID:    sess.ProfileID,
		StartedAt:    now,
		Quarter:      t.Quarter,
		AcademicYear: t.AcademicYear,
	}
	if lim := t.TimeLimit(); lim > 0 {
		dl := now.Add(lim)
		a.DeadlineAt = &dl
	}
	if err := m.store.CreateAttempt(ctx, a); err != nil {
		return nil, err
	}

	e := newEngine(a, t, m.store, m.grader, m.now)
	m.mu.Lock()
	m.live[a.ID] = e
	m.mu.Unlock()

	if e.remaining > 0 {
		ticks, stop := m.ticker(m.tick)
		go e.run(m.ctx, ticks, stop)
	}
	go m.reap(e)

	log.Info().Str("attempt_id", a.ID).Str("test_id", t.ID).Str("student_id", sess.ProfileID).
		Int("remaining_seconds", e.remaining).Msg("attempt started")
	return e, nil
}

// reap forgets the engine once it completes or is abandoned.
func (m *Manager) reap(e *Engine) {
	select {
	case <-e.done:
	case <-e.stopped:
	case <-m.ctx.Done():
	}
	m.mu.Lock()
	if m.live[e.ID()] == e {
		delete(m.live, e.ID())
	}
	m.mu.Unlock()
}

func (m *Manager) engine(id string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[id]
}

// Lookup returns the caller's live engine for an attempt.
func (m *Manager) Lookup(sess session.Session, attemptID string) (*Engine, bool) {
	e := m.engine(attemptID)
	if e == nil || e.student != sess.ProfileID {
		return nil, false
	}
	return e, true
}

// Abandon drops the caller's in-memory attempt. Nothing is written; the
// attempt row stays incomplete.
func (m *Manager) Abandon(sess session.Session, attemptID string) error {
	e, ok := m.Lookup(sess, attemptID)
	if !ok {
		return ErrAttemptNotFound
	}
	e.abandon()
	m.mu.Lock()
	delete(m.live, attemptID)
	m.mu.Unlock()
	log.Info().Str("attempt_id", attemptID).Msg("attempt abandoned")
	return nil
}

// Result returns a stored attempt visible to the caller: students see their
// own, staff see attempts of their school's tests.
func (m *Manager) Result(ctx context.Context, sess session.Session, attemptID string) (Result, error) {
	r, err := m.store.Result(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	switch sess.Role {
	case session.RoleStudent:
		if r.Attempt.StudentID != sess.ProfileID {
			return Result{}, ErrAttemptNotFound
		}
	case session.RoleAdmin:
	default:
		t, err := m.tests.GetTest(ctx, r.Attempt.TestID)
		if err != nil || t.SchoolID != sess.SchoolID || (sess.Role == session.RoleTeacher && t.TeacherID != sess.ProfileID) {
			return Result{}, ErrAttemptNotFound
		}
	}
	return r, nil
}

// History lists the caller's completed attempts.
func (m *Manager) History(ctx context.Context, sess session.Session) ([]HistoryItem, error) {
	if sess.ProfileID == "" {
		return nil, ErrProfileMissing
	}
	return m.store.ListForStudent(ctx, sess.ProfileID)
}
