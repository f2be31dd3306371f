package exam

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

func mc(text string, correct ...bool) QuestionDraft {
	q := QuestionDraft{Text: text, Type: TypeMultipleChoice}
	for i, c := range correct {
		q.Options = append(q.Options, OptionDraft{Text: string(rune('A' + i)), IsCorrect: c})
	}
	return q
}

func TestDraftValidate(t *testing.T) {
	cases := []struct {
		name   string
		draft  Draft
		detail string
	}{
		{"no questions", Draft{Title: "T"}, "Questions"},
		{"no title", Draft{Questions: []QuestionDraft{mc("q", true, false)}}, "Title"},
		{"two correct", Draft{Title: "T", Questions: []QuestionDraft{mc("q", true, true)}}, "exactly one correct option required, got 2"},
		{"none correct", Draft{Title: "T", Questions: []QuestionDraft{mc("q", false, false)}}, "got 0"},
		{"one option", Draft{Title: "T", Questions: []QuestionDraft{mc("q", true)}}, "at least two options"},
		{"true false three options", Draft{Title: "T", Questions: []QuestionDraft{{Text: "q", Type: TypeTrueFalse,
			Options: []OptionDraft{{Text: "True", IsCorrect: true}, {Text: "False"}, {Text: "Maybe"}}}}}, "exactly two options"},
		{"free text with options", Draft{Title: "T", Questions: []QuestionDraft{{Text: "q", Type: TypeFreeText,
			Options: []OptionDraft{{Text: "x"}}}}}, "take no options"},
		{"bad type", Draft{Title: "T", Questions: []QuestionDraft{{Text: "q", Type: "essay"}}}, "oneof"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.draft.Validate()
			ae := apierr.From(err)
			if err == nil || ae.Kind != apierr.KindValidation {
				t.Fatalf("want validation error, got %v", err)
			}
			if !strings.Contains(strings.Join(ae.Details, "\n"), tc.detail) {
				t.Fatalf("details %q do not mention %q", ae.Details, tc.detail)
			}
		})
	}

	ok := Draft{Title: " Algebra ", Questions: []QuestionDraft{mc("2+2?", false, true), {Text: "Explain", Type: TypeFreeText}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}
}

func TestBuildDenseOrderAndDefaultPoints(t *testing.T) {
	two := 2.0
	d := Draft{Title: "T", Questions: []QuestionDraft{mc("a", true, false, false), mc("b", false, true)}}
	d.Questions[1].Points = &two
	got := d.Build("t1", "s1", time.Unix(100, 0))
	if got.TotalQuestions != 2 || got.MaxScore() != 3 {
		t.Fatalf("total=%d max=%v", got.TotalQuestions, got.MaxScore())
	}
	for i, q := range got.Questions {
		if q.Order != i+1 || q.TestID != got.ID {
			t.Fatalf("question %d: %+v", i, q)
		}
		for j, o := range q.Options {
			if o.Order != j+1 || o.QuestionID != q.ID {
				t.Fatalf("option %d.%d: %+v", i, j, o)
			}
		}
	}
	red := got.Redacted()
	if red.Questions[0].Options[0].IsCorrect || !got.Questions[0].Options[0].IsCorrect {
		t.Fatal("Redacted must copy, not mutate")
	}
}

// recordingStore counts writes; every read fails so accidental use shows up.
type recordingStore struct {
	Store
	writes int
}

func (r *recordingStore) CreateTestGraph(ctx context.Context, t Test) (Test, bool, error) {
	r.writes++
	return t, true, nil
}

type noDirectory struct{ Directory }

func (noDirectory) GetClass(context.Context, string) (school.Class, error) {
	return school.Class{}, school.ErrClassNotFound
}

func TestCreateTestRejectsTwoCorrectBeforeWriting(t *testing.T) {
	st := &recordingStore{}
	svc := NewService(st, noDirectory{}, nil)
	teacher := session.Session{UserID: "u1", ProfileID: "t1", Role: session.RoleTeacher, SchoolID: "s1"}

	_, err := svc.CreateTest(context.Background(), teacher, Draft{
		Title:     "Physics",
		Questions: []QuestionDraft{mc("g?", true, true)},
	})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if st.writes != 0 {
		t.Fatalf("store written %d times", st.writes)
	}

	student := session.Session{UserID: "u2", ProfileID: "p2", Role: session.RoleStudent, SchoolID: "s1"}
	if _, err := svc.CreateTest(context.Background(), student, Draft{Title: "x", Questions: []QuestionDraft{mc("q", true, false)}}); apierr.KindOf(err) != apierr.KindForbidden {
		t.Fatalf("student created a test: %v", err)
	}

	if _, err := svc.CreateTest(context.Background(), teacher, Draft{Title: "ok", Questions: []QuestionDraft{mc("q", true, false)}}); err != nil {
		t.Fatal(err)
	}
	if st.writes != 1 {
		t.Fatalf("want 1 write, got %d", st.writes)
	}
}
