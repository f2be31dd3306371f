package stats

import (
	"fmt"
	"sort"

	"github.com/mind-engage/schooltests/internal/grading"
)

// Table is encoder-neutral tabular output. Cells are string, float64, int or
// nil for an empty cell; a nil row is a blank line.
type Table struct {
	Sheet  string   `json:"sheet"`
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

const (
	ColStudent        = "Student"
	ColClass          = "Class"
	ColOverall        = "Overall average"
	LabelClassSection = "Class averages"
	LabelNoClass      = "No class"
)

func classLabel(name string) string {
	if name == "" {
		return LabelNoClass
	}
	return name
}

// ExportTable lays out one row per student (sorted by class, then name) with
// a column per subject and the overall average, then a blank row and one
// row per class. Values are rounded to one decimal here and nowhere earlier.
func ExportTable(records []AttemptRecord) Table {
	students := RollupStudents(records)
	subjects := SubjectColumns(students)
	classes := RollupClasses(students)

	t := Table{Sheet: "Results"}
	t.Header = append(append([]string{ColStudent, ColClass}, subjects...), ColOverall)

	sorted := append([]StudentRollup(nil), students...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ClassName != sorted[j].ClassName {
			return sorted[i].ClassName < sorted[j].ClassName
		}
		return sorted[i].Name < sorted[j].Name
	})
	for _, s := range sorted {
		row := []any{s.Name, classLabel(s.ClassName)}
		for _, subj := range subjects {
			if v, ok := s.Averages[subj]; ok {
				row = append(row, grading.Round1(v))
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, grading.Round1(s.Overall))
		t.Rows = append(t.Rows, row)
	}

	if len(classes) == 0 {
		return t
	}
	t.Rows = append(t.Rows, nil, []any{LabelClassSection})
	for _, c := range classes {
		row := []any{classLabel(c.ClassName), fmt.Sprintf("%d students", c.Students)}
		for _, subj := range subjects {
			if v, ok := c.Subjects[subj]; ok {
				row = append(row, grading.Round1(v))
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, grading.Round1(c.Average))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ResultsTable is the flat per-attempt listing, newest first.
func ResultsTable(records []AttemptRecord) Table {
	sorted := append([]AttemptRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CompletedAt.After(sorted[j].CompletedAt) })

	t := Table{
		Sheet:  "Attempts",
		Header: []string{"Test", "Subject", ColStudent, ColClass, "Score", "Percent", "Completed", "Quarter", "Academic year"},
	}
	for _, r := range sorted {
		t.Rows = append(t.Rows, []any{
			r.TestTitle,
			r.SubjectKey(),
			r.StudentName(),
			classLabel(r.ClassName),
			fmt.Sprintf("%g/%g", r.TotalScore, r.MaxScore),
			grading.Round1(r.Percentage),
			r.CompletedAt.UTC().Format("2006-01-02"),
			r.Quarter,
			r.AcademicYear,
		})
	}
	return t
}
