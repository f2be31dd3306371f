package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/export"
	"github.com/mind-engage/schooltests/internal/grading"
	"github.com/mind-engage/schooltests/internal/stats"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

// scopedRecords reads the filter from the query and narrows it to the caller.
func scopedRecords(src *stats.SQLSource, r *http.Request) ([]stats.AttemptRecord, error) {
	s, err := sessionOf(r)
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()
	f, err := stats.Scope(s, stats.Filter{
		SchoolID:     q.Get("school_id"),
		ClassName:    q.Get("class_name"),
		TestID:       q.Get("test_id"),
		Quarter:      q.Get("quarter"),
		AcademicYear: q.Get("academic_year"),
	})
	if err != nil {
		return nil, err
	}
	return src.Records(r.Context(), f)
}

type rollupResponse struct {
	Subjects []string              `json:"subjects"`
	Students []stats.StudentRollup `json:"students"`
	Classes  []stats.ClassRollup   `json:"classes"`
}

func round(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = grading.Round1(v)
	}
	return out
}

// RollupHandler returns per-student and per-class averages, rounded for display.
func RollupHandler(src *stats.SQLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := scopedRecords(src, r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		students := stats.RollupStudents(recs)
		classes := stats.RollupClasses(students)
		resp := rollupResponse{
			Subjects: stats.SubjectColumns(students),
			Students: make([]stats.StudentRollup, 0, len(students)),
			Classes:  make([]stats.ClassRollup, 0, len(classes)),
		}
		if resp.Subjects == nil {
			resp.Subjects = []string{}
		}
		for _, st := range students {
			st.Averages = round(st.Averages)
			st.Overall = grading.Round1(st.Overall)
			resp.Students = append(resp.Students, st)
		}
		for _, c := range classes {
			c.Subjects = round(c.Subjects)
			c.Average = grading.Round1(c.Average)
			resp.Classes = append(resp.Classes, c)
		}
		writeJSON(w, resp)
	}
}

// ResultsHandler lists completed attempts, newest first.
func ResultsHandler(src *stats.SQLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := scopedRecords(src, r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out := make([]stats.AttemptRecord, len(recs))
		for i := range recs {
			out[len(recs)-1-i] = recs[i]
		}
		writeJSON(w, out)
	}
}

func ClassOverviewHandler(src *stats.SQLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := scopedRecords(src, r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		out := stats.ClassOverview(recs)
		if out == nil {
			out = []stats.ClassStats{}
		}
		writeJSON(w, out)
	}
}

func SummaryHandler(src *stats.SQLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		f, err := stats.Scope(s, stats.Filter{SchoolID: r.URL.Query().Get("school_id")})
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		sum, err := src.Summary(r.Context(), f.SchoolID)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, sum)
	}
}

// ExportHandler: ?table=rollup|results&format=csv|xlsx
func ExportHandler(src *stats.SQLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format, ok := export.ParseFormat(q.Get("format"))
		if !ok {
			apierr.Write(w, r, apierr.Validation("invalid format", "format must be csv or xlsx"))
			return
		}
		build := stats.ExportTable
		name := "statistics"
		switch q.Get("table") {
		case "", "rollup":
		case "results":
			build, name = stats.ResultsTable, "test-results"
		default:
			apierr.Write(w, r, apierr.Validation("invalid table", "table must be rollup or results"))
			return
		}
		recs, err := scopedRecords(src, r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, build(recs)); err != nil {
			apierr.Write(w, r, err)
			return
		}
		filename := fmt.Sprintf("%s-%s.%s", name, time.Now().Format("2006-01-02"), format.Ext())
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = buf.WriteTo(w)
	}
}

// AuditEventsHandler: ?after=<seq>&type=&limit=
func AuditEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
		out, err := events.List(r.Context(), after, q.Get("type"), queryInt(r, "limit", 100))
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		if out == nil {
			out = []syncx.Event{}
		}
		writeJSON(w, out)
	}
}
