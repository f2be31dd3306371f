package exam

import "time"

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeFreeText       QuestionType = "free_text"
)

func (t QuestionType) Valid() bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeFreeText:
		return true
	}
	return false
}

// HasOptions reports whether answers are a selected option.
func (t QuestionType) HasOptions() bool { return t == TypeMultipleChoice || t == TypeTrueFalse }

type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"option_text"`
	Order      int    `json:"option_order"`
	IsCorrect  bool   `json:"is_correct"`
}

type Question struct {
	ID      string       `json:"id"`
	TestID  string       `json:"test_id"`
	Text    string       `json:"question_text"`
	Order   int          `json:"question_order"`
	Type    QuestionType `json:"question_type"`
	Points  float64      `json:"points"`
	Options []Option     `json:"options"`
}

func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

type Test struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Subject          string     `json:"subject,omitempty"`
	TeacherID        string     `json:"teacher_id"`
	SchoolID         string     `json:"school_id"`
	ClassID          string     `json:"class_id,omitempty"`
	Quarter          string     `json:"quarter,omitempty"`
	AcademicYear     string     `json:"academic_year,omitempty"`
	TotalQuestions   int        `json:"total_questions"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	IsActive         bool       `json:"is_active"`
	AllowRetake      bool       `json:"allow_retake"`
	CreatedAt        time.Time  `json:"created_at"`
	Questions        []Question `json:"questions,omitempty"`
}

// SubjectKey is the reporting bucket: the subject, or the title when unset.
func (t Test) SubjectKey() string {
	if t.Subject != "" {
		return t.Subject
	}
	return t.Title
}

func (t Test) MaxScore() float64 {
	var m float64
	for _, q := range t.Questions {
		m += q.Points
	}
	return m
}

// TimeLimit is zero when the test is untimed.
func (t Test) TimeLimit() time.Duration {
	if t.TimeLimitMinutes == nil || *t.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*t.TimeLimitMinutes) * time.Minute
}

// Redacted returns a deep copy with option correctness hidden, for students.
func (t Test) Redacted() Test {
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Options = append([]Option(nil), q.Options...)
		for j := range q.Options {
			q.Options[j].IsCorrect = false
		}
		out.Questions[i] = q
	}
	return out
}

type Assignment struct {
	ID         string     `json:"id"`
	TestID     string     `json:"test_id"`
	StudentID  string     `json:"student_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// AssignedTest is a student's view of one assignment.
type AssignedTest struct {
	Test           Test       `json:"test"`
	AssignedAt     time.Time  `json:"assigned_at"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Completed      int        `json:"completed_attempts"`
	LastPercentage *float64   `json:"last_percentage,omitempty"`
}

// CanStart mirrors the retake guard for display.
func (a AssignedTest) CanStart() bool { return a.Completed == 0 || a.Test.AllowRetake }

type TestFilter struct {
	SchoolID   string
	TeacherID  string
	ClassID    string
	ActiveOnly bool
}
