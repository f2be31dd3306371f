package grading

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/mind-engage/schooltests/internal/exam"
)

func mcq(id string, points float64, correct int) exam.Question {
	q := exam.Question{ID: id, Type: exam.TypeMultipleChoice, Points: points}
	for i := 0; i < 3; i++ {
		q.Options = append(q.Options, exam.Option{ID: id + string(rune('a'+i)), IsCorrect: i == correct})
	}
	return q
}

func TestScenarioTwoOfThree(t *testing.T) {
	tst := exam.Test{Questions: []exam.Question{mcq("q1", 1, 0), mcq("q2", 1, 1), mcq("q3", 1, 2)}}
	sc, err := ScoreAttempt(context.Background(), NewDefaultGrader(), tst, map[string]Response{
		"q1": {OptionID: "q1a"},
		"q3": {OptionID: "q3c"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Total != 2 || sc.Max != 3 || sc.Percentage != 66.7 {
		t.Fatalf("got total=%v max=%v pct=%v", sc.Total, sc.Max, sc.Percentage)
	}
	if len(sc.Answers) != 3 {
		t.Fatalf("want a row per question, got %d", len(sc.Answers))
	}
	if a := sc.Answers[1]; a.OptionID != nil || a.Correct || a.Points != 0 {
		t.Fatalf("unanswered row: %+v", a)
	}
}

func TestScoringMatchesCorrectSubset(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	g := NewDefaultGrader()
	for iter := 0; iter < 200; iter++ {
		n := r.Intn(8)
		var tst exam.Test
		answers := map[string]Response{}
		var wantTotal, wantMax float64
		for i := 0; i < n; i++ {
			pts := float64(r.Intn(5))
			q := mcq(string(rune('A'+i)), pts, r.Intn(3))
			tst.Questions = append(tst.Questions, q)
			wantMax += pts
			switch r.Intn(3) {
			case 0: // unanswered
			case 1:
				for _, o := range q.Options {
					if o.IsCorrect {
						answers[q.ID] = Response{OptionID: o.ID}
					}
				}
				wantTotal += pts
			case 2:
				for _, o := range q.Options {
					if !o.IsCorrect {
						answers[q.ID] = Response{OptionID: o.ID}
						break
					}
				}
			}
		}
		sc, err := ScoreAttempt(context.Background(), g, tst, answers)
		if err != nil {
			t.Fatal(err)
		}
		if sc.Total != wantTotal || sc.Max != wantMax {
			t.Fatalf("iter %d: total=%v/%v max=%v/%v", iter, sc.Total, wantTotal, sc.Max, wantMax)
		}
		if sc.Percentage < 0 || sc.Percentage > 100 {
			t.Fatalf("percentage out of range: %v", sc.Percentage)
		}
		if sc.Max == 0 && sc.Percentage != 0 {
			t.Fatalf("zero max must give 0%%, got %v", sc.Percentage)
		}
	}
}

func TestUnknownOptionAndFreeText(t *testing.T) {
	g := NewDefaultGrader()
	_, err := g.Grade(context.Background(), mcq("q", 1, 0), Response{OptionID: "zzz"})
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("want ErrUnknownOption, got %v", err)
	}
	res, err := g.Grade(context.Background(), exam.Question{ID: "f", Type: exam.TypeFreeText, Points: 2}, Response{Text: "photosynthesis"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Points != 0 || res.Correct || !res.NeedsManual || res.MaxPoints != 2 {
		t.Fatalf("free text: %+v", res)
	}
}

func TestPercentageRounding(t *testing.T) {
	cases := []struct{ total, max, want float64 }{
		{2, 3, 66.7},
		{1, 3, 33.3},
		{0, 0, 0},
		{5, 5, 100},
		{1, 8, 12.5},
	}
	for _, c := range cases {
		if got := Percentage(c.total, c.max); got != c.want {
			t.Errorf("Percentage(%v, %v) = %v, want %v", c.total, c.max, got, c.want)
		}
	}
}
