package grading

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/mind-engage/schooltests/internal/exam"
)

var ErrUnknownOption = errors.New("selected option does not belong to the question")

// Response is a student's answer to one question. The zero value means unanswered.
type Response struct {
	OptionID string `json:"option_id,omitempty"`
	Text     string `json:"text_answer,omitempty"`
}

func (r Response) Empty() bool { return r.OptionID == "" && strings.TrimSpace(r.Text) == "" }

// Result is the outcome of grading a single question response.
type Result struct {
	Points      float64  // points awarded automatically
	MaxPoints   float64  // the question's max points
	Correct     bool     // mirrors the selected option's flag
	NeedsManual bool     // true if teacher review is required
	Feedback    []string // optional notes
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q exam.Question, resp Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q exam.Question, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[exam.QuestionType]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q exam.Question, resp Response) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, resp)
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[exam.QuestionType]Strategy{
			exam.TypeMultipleChoice: optionStrategy{},
			exam.TypeTrueFalse:      optionStrategy{},
			exam.TypeFreeText:       freeTextStrategy{},
		},
	}
}

// --- Strategies ---

type optionStrategy struct{}

func (optionStrategy) Grade(_ context.Context, q exam.Question, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if resp.OptionID == "" {
		return res, nil
	}
	o, ok := q.Option(resp.OptionID)
	if !ok {
		return res, ErrUnknownOption
	}
	res.Correct = o.IsCorrect
	if o.IsCorrect {
		res.Points = q.Points
	}
	return res, nil
}

// freeTextStrategy records the text; a teacher scores it later.
type freeTextStrategy struct{}

func (freeTextStrategy) Grade(_ context.Context, q exam.Question, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if strings.TrimSpace(resp.Text) != "" {
		res.NeedsManual = true
		res.Feedback = []string{"manual grading required"}
	}
	return res, nil
}

// Round1 rounds half away from zero to one decimal place.
func Round1(x float64) float64 { return math.Round(x*10) / 10 }

// Percentage is 100*total/max rounded to one decimal, or 0 when max is 0.
func Percentage(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return Round1(100 * total / max)
}
