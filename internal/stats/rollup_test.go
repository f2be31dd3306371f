package stats

import (
	"math"
	"testing"
	"time"
)

func rec(student, class, subject string, pct float64) AttemptRecord {
	return AttemptRecord{StudentID: student, FirstName: student, ClassName: class, TestTitle: subject + " test", Subject: subject, Percentage: pct}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRunningAverageFoldIsOrderDependent(t *testing.T) {
	got := RollupStudents([]AttemptRecord{
		rec("ana", "7A", "Math", 80),
		rec("ana", "7A", "Math", 60),
		rec("ana", "7A", "Math", 100),
	})
	if len(got) != 1 {
		t.Fatalf("want one student, got %d", len(got))
	}
	if v := got[0].Averages["Math"]; v != 85 {
		t.Fatalf("fold of [80 60 100] = %v, want 85 (not the mean 80)", v)
	}

	reordered := RollupStudents([]AttemptRecord{
		rec("ana", "7A", "Math", 100),
		rec("ana", "7A", "Math", 80),
		rec("ana", "7A", "Math", 60),
	})
	if v := reordered[0].Averages["Math"]; v != 75 {
		t.Fatalf("fold of [100 80 60] = %v, want 75", v)
	}
}

func TestSubjectFallsBackToTitle(t *testing.T) {
	r := AttemptRecord{StudentID: "s", TestTitle: "Biology quiz", Percentage: 50}
	got := RollupStudents([]AttemptRecord{r})
	if _, ok := got[0].Averages["Biology quiz"]; !ok {
		t.Fatalf("subjects: %+v", got[0].Averages)
	}
}

func TestOverallIsMeanOfSubjects(t *testing.T) {
	got := RollupStudents([]AttemptRecord{
		rec("ben", "7A", "Math", 90),
		rec("ben", "7A", "Math", 70), // Math = 80
		rec("ben", "7A", "Art", 50),
	})
	if got[0].Overall != 65 {
		t.Fatalf("overall = %v, want 65 (subjects weigh equally)", got[0].Overall)
	}
	if len(got[0].Subjects) != 2 || got[0].Subjects[0] != "Math" {
		t.Fatalf("subject order: %v", got[0].Subjects)
	}
}

func TestOverallSumsInSubjectOrder(t *testing.T) {
	vals := []float64{0.1, 1e16, -1e16, 0.2}
	recs := []AttemptRecord{
		rec("ben", "7A", "Math", vals[0]),
		rec("ben", "7A", "Art", vals[1]),
		rec("ben", "7A", "History", vals[2]),
		rec("ben", "7A", "Music", vals[3]),
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	want := sum / 4
	for i := 0; i < 50; i++ {
		if got := RollupStudents(recs)[0].Overall; got != want {
			t.Fatalf("run %d: overall = %v, want %v", i, got, want)
		}
	}
}

func TestSchoolAverageIsMeanOfStudents(t *testing.T) {
	students := RollupStudents([]AttemptRecord{
		rec("ana", "7A", "Math", 100),
		rec("ana", "7A", "Math", 50),
		rec("ana", "7A", "Math", 50), // one student, three attempts: 62.5
		rec("ben", "7B", "Art", 40),
	})
	if got := SchoolAverage(students); got != 51.25 {
		t.Fatalf("school average = %v, want 51.25", got)
	}
	if got := SchoolAverage(nil); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestClassRollupExcludesMissingSubjects(t *testing.T) {
	students := RollupStudents([]AttemptRecord{
		rec("ana", "7A", "Math", 80),
		rec("ana", "7A", "Art", 60),
		rec("ben", "7A", "Math", 40),
		rec("cy", "7B", "Art", 90),
	})
	classes := RollupClasses(students)
	if len(classes) != 2 || classes[0].ClassName != "7A" {
		t.Fatalf("classes: %+v", classes)
	}
	a := classes[0]
	if a.Students != 2 {
		t.Fatalf("students = %d", a.Students)
	}
	if a.Subjects["Math"] != 60 {
		t.Fatalf("math = %v", a.Subjects["Math"])
	}
	if a.Subjects["Art"] != 60 {
		t.Fatalf("art = %v, ben has no art and must not count as zero", a.Subjects["Art"])
	}
	// ana overall 70, ben overall 40
	if !near(a.Average, 55) {
		t.Fatalf("class average = %v", a.Average)
	}
}

func TestSubjectColumnsAreAlphabetical(t *testing.T) {
	cols := SubjectColumns(RollupStudents([]AttemptRecord{
		rec("zoe", "7A", "Physics", 50),
		rec("amy", "7A", "Art", 50),
		rec("amy", "7A", "Math", 50),
	}))
	if len(cols) != 3 || cols[0] != "Art" || cols[1] != "Math" || cols[2] != "Physics" {
		t.Fatalf("columns = %v", cols)
	}
}

func TestExportTableLayout(t *testing.T) {
	tbl := ExportTable([]AttemptRecord{
		rec("zoe", "7A", "Math", 100),
		rec("zoe", "7A", "Math", 0),
		rec("amy", "7A", "Physics", 200.0/3),
		rec("bob", "", "Math", 10),
	})
	wantHeader := []string{"Student", "Class", "Math", "Physics", "Overall average"}
	if len(tbl.Header) != len(wantHeader) {
		t.Fatalf("header: %v", tbl.Header)
	}
	for i := range wantHeader {
		if tbl.Header[i] != wantHeader[i] {
			t.Fatalf("header: %v", tbl.Header)
		}
	}
	// students sorted by class then name; "" sorts first
	if tbl.Rows[0][0] != "bob" || tbl.Rows[0][1] != LabelNoClass {
		t.Fatalf("row 0: %v", tbl.Rows[0])
	}
	amy := tbl.Rows[1]
	if amy[0] != "amy" || amy[2] != nil || amy[3] != 66.7 || amy[4] != 66.7 {
		t.Fatalf("amy row: %v", amy)
	}
	zoe := tbl.Rows[2]
	if zoe[2] != 50.0 || zoe[3] != nil {
		t.Fatalf("zoe row: %v", zoe)
	}
	if tbl.Rows[3] != nil || tbl.Rows[4][0] != LabelClassSection {
		t.Fatalf("class section marker: %v %v", tbl.Rows[3], tbl.Rows[4])
	}
	classRows := tbl.Rows[5:]
	if len(classRows) != 2 || classRows[1][0] != "7A" || classRows[1][1] != "2 students" {
		t.Fatalf("class rows: %v", classRows)
	}
	// 7A: (66.666.. + 50) / 2 = 58.33.. -> 58.3
	if classRows[1][4] != 58.3 {
		t.Fatalf("7A average cell: %v", classRows[1][4])
	}
}

func TestResultsTableAndOverview(t *testing.T) {
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	a := rec("ana", "7A", "Math", 66.66)
	a.TotalScore, a.MaxScore, a.CompletedAt = 2, 3, now
	b := rec("ben", "7A", "Math", 100)
	b.TotalScore, b.MaxScore, b.CompletedAt = 3, 3, now.Add(time.Hour)
	c := rec("ana", "7A", "Art", 50)
	c.TotalScore, c.MaxScore, c.CompletedAt = 1, 2, now.Add(-time.Hour)

	tbl := ResultsTable([]AttemptRecord{a, b, c})
	if len(tbl.Rows) != 3 || tbl.Rows[0][2] != "ben" || tbl.Rows[1][4] != "2/3" || tbl.Rows[1][5] != 66.7 {
		t.Fatalf("results: %v", tbl.Rows)
	}
	if tbl.Rows[1][6] != "2025-10-01" {
		t.Fatalf("date cell: %v", tbl.Rows[1][6])
	}

	ov := ClassOverview([]AttemptRecord{a, b, c})
	if len(ov) != 1 || ov[0].Students != 2 || ov[0].Attempts != 3 || ov[0].Average != 72.2 {
		t.Fatalf("overview: %+v", ov)
	}
}
