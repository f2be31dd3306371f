package exam_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db/dbtest"
	"github.com/mind-engage/schooltests/internal/exam"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

func question(text string, correct int, n int) exam.QuestionDraft {
	q := exam.QuestionDraft{Text: text, Type: exam.TypeMultipleChoice}
	for i := 0; i < n; i++ {
		q.Options = append(q.Options, exam.OptionDraft{Text: text + "-opt", IsCorrect: i == correct})
	}
	return q
}

type fixture struct {
	svc     *exam.Service
	store   *exam.SQLStore
	classID string
	teacher session.Session
}

func setup(t *testing.T) fixture {
	t.Helper()
	h := dbtest.Open(t)
	dbtest.AddSchool(t, h, "s1", "North")
	dbtest.AddSchool(t, h, "s2", "South")
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "t1", Role: "teacher", SchoolID: "s1"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st1", Role: "student", SchoolID: "s1", ClassName: "7A"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st2", Role: "student", SchoolID: "s1", ClassName: "7A"})
	dbtest.AddPerson(t, h, dbtest.Person{ProfileID: "st9", Role: "student", SchoolID: "s2", ClassName: "7A"})

	schools := school.NewSQLStore(h)
	c, err := schools.CreateClass(context.Background(), school.NewClass{Name: "7A", Grade: 7, Subject: "Math", AcademicYear: "2025-2026", SchoolID: "s1", TeacherID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	st := exam.NewSQLStore(h)
	return fixture{
		svc:     exam.NewService(st, schools, nil),
		store:   st,
		classID: c.ID,
		teacher: session.Session{UserID: "u-t1", ProfileID: "t1", Role: session.RoleTeacher, SchoolID: "s1"},
	}
}

func TestCreateTestGraphIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	d := exam.Draft{
		ID:        "fixed-id",
		Title:     "Fractions",
		ClassID:   f.classID,
		Questions: []exam.QuestionDraft{question("q1", 1, 3), question("q2", 0, 2)},
	}
	first, err := f.svc.CreateTest(ctx, f.teacher, d)
	if err != nil {
		t.Fatal(err)
	}
	if first.Subject != "Math" || first.AcademicYear != "2025-2026" || first.SchoolID != "s1" {
		t.Fatalf("class defaults not applied: %+v", first)
	}
	second, err := f.svc.CreateTest(ctx, f.teacher, d)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || len(second.Questions) != 2 {
		t.Fatalf("second create differs: %+v", second)
	}
	if second.Questions[0].Options[0].ID != first.Questions[0].Options[0].ID {
		t.Fatal("second create rewrote the graph")
	}
	if got := second.Questions[0].Options[1]; !got.IsCorrect || got.Order != 2 {
		t.Fatalf("options out of order: %+v", second.Questions[0].Options)
	}

	list, err := f.svc.ListTests(ctx, f.teacher, exam.TestFilter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}

	other := session.Session{ProfileID: "t2", Role: session.RoleTeacher, SchoolID: "s1"}
	if _, err := f.svc.GetTest(ctx, other, first.ID); !errors.Is(err, exam.ErrTestNotFound) {
		t.Fatalf("other teacher saw test: %v", err)
	}
	if err := f.svc.SetActive(ctx, f.teacher, first.ID, false); err != nil {
		t.Fatal(err)
	}
	active, _ := f.svc.ListTests(ctx, f.teacher, exam.TestFilter{ActiveOnly: true})
	if len(active) != 0 {
		t.Fatalf("deactivated test still listed: %+v", active)
	}
}

func TestAssignAndStudentList(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	limit := 30
	tst, err := f.svc.CreateTest(ctx, f.teacher, exam.Draft{Title: "Quiz", TimeLimitMinutes: &limit, Questions: []exam.QuestionDraft{question("q", 0, 2)}})
	if err != nil {
		t.Fatal(err)
	}
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	n, err := f.svc.Assign(ctx, f.teacher, tst.ID, exam.AssignRequest{ClassID: f.classID, StudentIDs: []string{"st1"}, DueDate: &due})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want 2 new assignments, got %d", n)
	}
	n, err = f.svc.Assign(ctx, f.teacher, tst.ID, exam.AssignRequest{StudentIDs: []string{"st1"}})
	if err != nil || n != 0 {
		t.Fatalf("re-assign: n=%d err=%v", n, err)
	}
	if _, err := f.svc.Assign(ctx, f.teacher, tst.ID, exam.AssignRequest{StudentIDs: []string{"st9"}}); apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("cross-school student assigned: %v", err)
	}

	student := session.Session{ProfileID: "st1", Role: session.RoleStudent, SchoolID: "s1"}
	mine, err := f.svc.ListAssigned(ctx, student)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Test.ID != tst.ID || mine[0].Completed != 0 || !mine[0].CanStart() {
		t.Fatalf("student list: %+v", mine)
	}
	if mine[0].DueDate == nil || !mine[0].DueDate.Equal(due) || *mine[0].Test.TimeLimitMinutes != 30 {
		t.Fatalf("due/limit lost: %+v", mine[0])
	}
}

// failingAssign wraps the real store and fails the assignment step.
type failingAssign struct{ *exam.SQLStore }

func (failingAssign) Assign(context.Context, string, []string, *time.Time) (int, error) {
	return 0, errors.New("boom")
}

func TestCombine(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a, err := f.svc.CreateTest(ctx, f.teacher, exam.Draft{Title: "Algebra", Questions: []exam.QuestionDraft{question("a1", 0, 2), question("a2", 1, 2)}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.CreateTest(ctx, f.teacher, exam.Draft{Title: "Geometry", Questions: []exam.QuestionDraft{question("g1", 1, 3)}})
	if err != nil {
		t.Fatal(err)
	}

	req := exam.CombineRequest{Title: "Midterm", SourceTestIDs: []string{a.ID, b.ID}, ClassID: f.classID}
	c, n, err := f.svc.Combine(ctx, f.teacher, req)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || c.TotalQuestions != 3 {
		t.Fatalf("assigned=%d total=%d", n, c.TotalQuestions)
	}
	wantText := []string{"[Algebra] a1", "[Algebra] a2", "[Geometry] g1"}
	for i, q := range c.Questions {
		if q.Order != i+1 || q.Text != wantText[i] {
			t.Fatalf("question %d = %d %q", i, q.Order, q.Text)
		}
	}
	if !c.Questions[2].Options[1].IsCorrect {
		t.Fatal("correct option not copied")
	}

	broken := exam.NewService(failingAssign{f.store}, f.svc.Directory, nil)
	req.Title = "Final"
	if _, _, err := broken.Combine(ctx, f.teacher, req); err == nil {
		t.Fatal("expected failure")
	}
	all, err := f.store.ListTests(ctx, exam.TestFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, tst := range all {
		if strings.EqualFold(tst.Title, "Final") {
			t.Fatal("combined test survived a failed assignment")
		}
	}
}
