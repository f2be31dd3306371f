package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/schooltests/internal/stats"
)

func sample() stats.Table {
	return stats.Table{
		Sheet:  "Results",
		Header: []string{"Student", "Class", "Math", "Overall average"},
		Rows: [][]any{
			{"Ana Lopez", "7A", 66.7, 66.7},
			{"Ben, Jr.", "7A", nil, 50.0},
			nil,
			{"Class averages"},
			{"7A", "2 students", 66.7, 58.4},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"Student,Class,Math,Overall average",
		"Ana Lopez,7A,66.7,66.7",
		`"Ben, Jr.",7A,,50.0`,
		"",
		"Class averages",
		"7A,2 students,66.7,58.4",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Fatalf("csv mismatch:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) < 6 {
		t.Fatalf("rows: %v", rows)
	}
	if rows[0][2] != "Math" || rows[1][0] != "Ana Lopez" || rows[1][2] != "66.7" {
		t.Fatalf("unexpected cells: %v", rows[:2])
	}
	if rows[2][2] != "" {
		t.Fatalf("missing subject should be empty, got %q", rows[2][2])
	}
	if len(rows[3]) != 0 {
		t.Fatalf("blank separator row: %v", rows[3])
	}
	if rows[5][1] != "2 students" {
		t.Fatalf("class row: %v", rows[5])
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "csv": FormatCSV, "xlsx": FormatXLSX} {
		got, ok := ParseFormat(in)
		if !ok || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseFormat("pdf"); ok {
		t.Error("pdf accepted")
	}
}
