// Package stats folds completed attempts into reporting views. Everything
// here except SQLSource is a pure function of its input.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/schooltests/internal/grading"
)

// AttemptRecord is one completed attempt joined with its test and student.
type AttemptRecord struct {
	AttemptID    string    `json:"attempt_id"`
	TestID       string    `json:"test_id"`
	TestTitle    string    `json:"test_title"`
	Subject      string    `json:"subject,omitempty"`
	TeacherID    string    `json:"teacher_id"`
	SchoolID     string    `json:"school_id"`
	StudentID    string    `json:"student_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	ClassName    string    `json:"class_name"`
	TotalScore   float64   `json:"total_score"`
	MaxScore     float64   `json:"max_score"`
	Percentage   float64   `json:"percentage_score"`
	CompletedAt  time.Time `json:"completed_at"`
	Quarter      string    `json:"quarter,omitempty"`
	AcademicYear string    `json:"academic_year,omitempty"`
}

func (r AttemptRecord) SubjectKey() string {
	if s := strings.TrimSpace(r.Subject); s != "" {
		return s
	}
	return r.TestTitle
}

func (r AttemptRecord) StudentName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// StudentRollup holds unrounded per-subject averages for one student.
type StudentRollup struct {
	StudentID string             `json:"student_id"`
	Name      string             `json:"name"`
	ClassName string             `json:"class_name"`
	Subjects  []string           `json:"subjects"` // first-seen order
	Averages  map[string]float64 `json:"averages"`
	Overall   float64            `json:"overall"`
}

// RollupStudents groups records by student, then by subject key. Repeated
// subjects are folded as avg = (avg + next) / 2 in record order, so the
// result depends on the order of records. The overall average is the plain
// mean of the subject averages.
func RollupStudents(records []AttemptRecord) []StudentRollup {
	index := map[string]int{}
	var out []StudentRollup
	for _, r := range records {
		i, ok := index[r.StudentID]
		if !ok {
			i = len(out)
			index[r.StudentID] = i
			out = append(out, StudentRollup{
				StudentID: r.StudentID,
				Name:      r.StudentName(),
				ClassName: r.ClassName,
				Averages:  map[string]float64{},
			})
		}
		s := &out[i]
		key := r.SubjectKey()
		if prev, seen := s.Averages[key]; seen {
			s.Averages[key] = (prev + r.Percentage) / 2
		} else {
			s.Subjects = append(s.Subjects, key)
			s.Averages[key] = r.Percentage
		}
	}
	for i := range out {
		out[i].Overall = out[i].mean()
	}
	return out
}

// mean sums in Subjects order so the result is stable across runs.
func (s StudentRollup) mean() float64 {
	if len(s.Subjects) == 0 {
		return 0
	}
	var sum float64
	for _, k := range s.Subjects {
		sum += s.Averages[k]
	}
	return sum / float64(len(s.Subjects))
}

// SchoolAverage is the mean of the students' overall averages, unrounded.
func SchoolAverage(students []StudentRollup) float64 {
	vs := make([]float64, len(students))
	for i, s := range students {
		vs[i] = s.Overall
	}
	return avg(vs)
}

// ClassRollup averages the students of one class.
type ClassRollup struct {
	ClassName string             `json:"class_name"`
	Students  int                `json:"students"`
	Average   float64            `json:"average"`
	Subjects  map[string]float64 `json:"subjects"`
}

// RollupClasses groups students by class name. A subject average only counts
// the members that have a value for it.
func RollupClasses(students []StudentRollup) []ClassRollup {
	type acc struct {
		overall []float64
		subj    map[string][]float64
	}
	groups := map[string]*acc{}
	for _, s := range students {
		g, ok := groups[s.ClassName]
		if !ok {
			g = &acc{subj: map[string][]float64{}}
			groups[s.ClassName] = g
		}
		g.overall = append(g.overall, s.Overall)
		for k, v := range s.Averages {
			g.subj[k] = append(g.subj[k], v)
		}
	}
	out := make([]ClassRollup, 0, len(groups))
	for name, g := range groups {
		c := ClassRollup{ClassName: name, Students: len(g.overall), Average: avg(g.overall), Subjects: map[string]float64{}}
		for k, vs := range g.subj {
			c.Subjects[k] = avg(vs)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out
}

func avg(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// SubjectColumns is the sorted union of subjects across students.
func SubjectColumns(students []StudentRollup) []string {
	seen := map[string]bool{}
	var cols []string
	for _, s := range students {
		for _, k := range s.Subjects {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// ClassStats is the per-class line of the overview screen.
type ClassStats struct {
	ClassName string  `json:"class_name"`
	Students  int     `json:"students"`
	Attempts  int     `json:"attempts"`
	Average   float64 `json:"average_percentage"`
}

// ClassOverview counts distinct students and attempts per class; the
// average is the rounded mean of attempt percentages.
func ClassOverview(records []AttemptRecord) []ClassStats {
	type acc struct {
		students map[string]bool
		pcts     []float64
	}
	groups := map[string]*acc{}
	for _, r := range records {
		g, ok := groups[r.ClassName]
		if !ok {
			g = &acc{students: map[string]bool{}}
			groups[r.ClassName] = g
		}
		g.students[r.StudentID] = true
		g.pcts = append(g.pcts, r.Percentage)
	}
	out := make([]ClassStats, 0, len(groups))
	for name, g := range groups {
		out = append(out, ClassStats{ClassName: name, Students: len(g.students), Attempts: len(g.pcts), Average: grading.Round1(avg(g.pcts))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out
}
