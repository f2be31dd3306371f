// Package dbtest opens throwaway sqlite databases for store tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/mind-engage/schooltests/internal/db"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	h, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func AddSchool(t testing.TB, h *sql.DB, id, name string) {
	t.Helper()
	if _, err := h.Exec(`INSERT INTO schools (id, name, created_at) VALUES ($1,$2,0)`, id, name); err != nil {
		t.Fatalf("add school: %v", err)
	}
}

// Person is a user plus profile row; UserID defaults to "u-"+ProfileID.
type Person struct {
	ProfileID string
	UserID    string
	Role      string
	SchoolID  string
	FirstName string
	LastName  string
	ClassName string
}

func AddPerson(t testing.TB, h *sql.DB, p Person) Person {
	t.Helper()
	if p.UserID == "" {
		p.UserID = "u-" + p.ProfileID
	}
	var school sql.NullString
	if p.SchoolID != "" {
		school = sql.NullString{String: p.SchoolID, Valid: true}
	}
	if _, err := h.Exec(`INSERT INTO users (id, email, password_hash, email_confirmed, created_at) VALUES ($1,$2,'x',TRUE,0)`,
		p.UserID, p.UserID+"@example.com"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if _, err := h.Exec(`INSERT INTO profiles (id, user_id, role, school_id, first_name, last_name, class_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0)`,
		p.ProfileID, p.UserID, p.Role, school, p.FirstName, p.LastName, p.ClassName); err != nil {
		t.Fatalf("add profile: %v", err)
	}
	return p
}
