package exam

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mind-engage/schooltests/internal/apierr"
)

var validate = validator.New()

type OptionDraft struct {
	Text      string `json:"option_text" validate:"required,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionDraft struct {
	Text    string        `json:"question_text" validate:"required,max=4000"`
	Type    QuestionType  `json:"question_type" validate:"required,oneof=multiple_choice true_false free_text"`
	Points  *float64      `json:"points" validate:"omitempty,gte=0,lte=1000"`
	Options []OptionDraft `json:"options" validate:"dive"`
}

// Draft is a test graph as submitted by its author. ID is optional; when set,
// creating the same draft twice yields the same test.
type Draft struct {
	ID               string          `json:"id" validate:"omitempty,max=64"`
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=2000"`
	Subject          string          `json:"subject" validate:"max=100"`
	ClassID          string          `json:"class_id"`
	Quarter          string          `json:"quarter" validate:"max=20"`
	AcademicYear     string          `json:"academic_year" validate:"max=20"`
	TimeLimitMinutes *int            `json:"time_limit_minutes" validate:"omitempty,gte=1,lte=600"`
	AllowRetake      bool            `json:"allow_retake"`
	Inactive         bool            `json:"inactive"`
	Questions        []QuestionDraft `json:"questions" validate:"required,min=1,dive"`
}

// Validate checks the whole draft and reports every problem at once.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	d.Subject = strings.TrimSpace(d.Subject)
	var details []string
	if err := validate.Struct(d); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return apierr.Validation("invalid test", err.Error())
		}
		for _, fe := range ve {
			details = append(details, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	for i, q := range d.Questions {
		details = append(details, checkOptions(i+1, q)...)
	}
	if len(details) > 0 {
		return apierr.Validation("invalid test", details...)
	}
	return nil
}

func checkOptions(n int, q QuestionDraft) []string {
	var out []string
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	switch q.Type {
	case TypeMultipleChoice:
		if len(q.Options) < 2 {
			out = append(out, fmt.Sprintf("question %d: at least two options required", n))
		}
	case TypeTrueFalse:
		if len(q.Options) != 2 {
			out = append(out, fmt.Sprintf("question %d: true/false needs exactly two options", n))
		}
	case TypeFreeText:
		if len(q.Options) > 0 {
			out = append(out, fmt.Sprintf("question %d: free text questions take no options", n))
		}
		return out
	default:
		return out
	}
	if correct != 1 {
		out = append(out, fmt.Sprintf("question %d: exactly one correct option required, got %d", n, correct))
	}
	return out
}

// Build turns a validated draft into a test graph with dense 1-based orders.
func (d Draft) Build(teacherID, schoolID string, now time.Time) Test {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := Test{
		ID:               id,
		Title:            d.Title,
		Description:      strings.TrimSpace(d.Description),
		Subject:          d.Subject,
		TeacherID:        teacherID,
		SchoolID:         schoolID,
		ClassID:          d.ClassID,
		Quarter:          d.Quarter,
		AcademicYear:     d.AcademicYear,
		TotalQuestions:   len(d.Questions),
		TimeLimitMinutes: d.TimeLimitMinutes,
		IsActive:         !d.Inactive,
		AllowRetake:      d.AllowRetake,
		CreatedAt:        now.UTC().Truncate(time.Second),
	}
	for i, qd := range d.Questions {
		points := 1.0
		if qd.Points != nil {
			points = *qd.Points
		}
		q := Question{
			ID:     uuid.NewString(),
			TestID: id,
			Text:   strings.TrimSpace(qd.Text),
			Order:  i + 1,
			Type:   qd.Type,
			Points: points,
		}
		for j, od := range qd.Options {
			q.Options = append(q.Options, Option{
				ID:         uuid.NewString(),
				QuestionID: q.ID,
				Text:       strings.TrimSpace(od.Text),
				Order:      j + 1,
				IsCorrect:  od.IsCorrect,
			})
		}
		t.Questions = append(t.Questions, q)
	}
	return t
}

// DraftFrom copies a stored test back into a draft, used by Combine.
func DraftFrom(t Test, prefix string) []QuestionDraft {
	out := make([]QuestionDraft, 0, len(t.Questions))
	for _, q := range t.Questions {
		p := q.Points
		qd := QuestionDraft{Text: prefix + q.Text, Type: q.Type, Points: &p}
		for _, o := range q.Options {
			qd.Options = append(qd.Options, OptionDraft{Text: o.Text, IsCorrect: o.IsCorrect})
		}
		out = append(out, qd)
	}
	return out
}
