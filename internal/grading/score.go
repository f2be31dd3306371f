package grading

import (
	"context"
	"fmt"
	"strings"

	"github.com/mind-engage/schooltests/internal/exam"
)

// Answer is one graded row, one per question of the test.
type Answer struct {
	QuestionID  string  `json:"question_id"`
	OptionID    *string `json:"selected_option_id,omitempty"`
	Text        *string `json:"text_answer,omitempty"`
	Correct     bool    `json:"is_correct"`
	Points      float64 `json:"points_earned"`
	NeedsManual bool    `json:"needs_manual,omitempty"`
}

type Score struct {
	Answers    []Answer `json:"answers"`
	Total      float64  `json:"total_score"`
	Max        float64  `json:"max_score"`
	Percentage float64  `json:"percentage_score"`
}

// ScoreAttempt grades every question of t in order. Missing answers earn 0
// and still produce a row.
func ScoreAttempt(ctx context.Context, g Grader, t exam.Test, answers map[string]Response) (Score, error) {
	var sc Score
	sc.Answers = make([]Answer, 0, len(t.Questions))
	for _, q := range t.Questions {
		resp := answers[q.ID]
		res, err := g.Grade(ctx, q, resp)
		if err != nil {
			return Score{}, fmt.Errorf("question %d: %w", q.Order, err)
		}
		a := Answer{QuestionID: q.ID, Correct: res.Correct, Points: res.Points, NeedsManual: res.NeedsManual}
		if resp.OptionID != "" {
			id := resp.OptionID
			a.OptionID = &id
		}
		if txt := strings.TrimSpace(resp.Text); txt != "" {
			a.Text = &txt
		}
		sc.Answers = append(sc.Answers, a)
		sc.Total += res.Points
		sc.Max += q.Points
	}
	sc.Percentage = Percentage(sc.Total, sc.Max)
	return sc, nil
}
