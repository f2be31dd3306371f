package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/db/dbtest"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/school"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

type fixture struct {
	srv    *httptest.Server
	ids    *identity.Provider
	tokens map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := dbtest.Open(t)
	dbtest.AddSchool(t, h, "s1", "North")
	dbtest.AddSchool(t, h, "s2", "South")
	people := []dbtest.Person{
		{ProfileID: "admin", Role: "admin", FirstName: "Ada"},
		{ProfileID: "sa1", Role: "school_admin", SchoolID: "s1"},
		{ProfileID: "st1", Role: "student", SchoolID: "s1", ClassName: "7A"},
		{ProfileID: "st2", Role: "student", SchoolID: "s2", ClassName: "7B"},
	}
	ids := identity.NewProvider(h, identity.Options{Secret: "test-secret", BcryptCost: bcrypt.MinCost})
	profiles := school.NewSQLStore(h)
	authn := auth.NewAuthenticator(ids, profiles)
	ids.OnChange(authn.HandleIdentityEvent)

	f := &fixture{ids: ids, tokens: map[string]string{}}
	for _, p := range people {
		p = dbtest.AddPerson(t, h, p)
		tok, err := ids.IssueToken(p.UserID, p.Role)
		if err != nil {
			t.Fatal(err)
		}
		f.tokens[p.ProfileID] = tok
	}

	hd := &Handler{
		Sessions: authn,
		Accounts: ids,
		Profiles: profiles,
		Vault:    NewVault(h, "seal", time.Hour),
		Events:   syncx.NewEventRepo(h),
	}
	r := chi.NewRouter()
	hd.Mount(r)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestCreateUserByStudentIsForbidden(t *testing.T) {
	f := newFixture(t)
	res, _ := f.post(t, "/create-user", f.tokens["st1"], map[string]string{
		"email": "new@example.com", "password": "secret123", "role": "student", "school_id": "s1",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", res.StatusCode)
	}
	if _, err := f.ids.UserByEmail(context.Background(), "new@example.com"); err == nil {
		t.Fatal("identity was created")
	}
}

func TestCreateUserRequiresBearer(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "garbage"} {
		res, _ := f.post(t, "/create-user", tok, map[string]string{"email": "x@example.com", "role": "student"})
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", tok, res.StatusCode)
		}
	}
}

func TestCreateUserAndRevealOnce(t *testing.T) {
	f := newFixture(t)
	res, out := f.post(t, "/create-user", f.tokens["admin"], map[string]string{
		"email": "Teacher@Example.com", "first_name": "Tom", "role": "teacher", "school_id": "s1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%v", res.StatusCode, out)
	}
	pw, _ := out["password"].(string)
	if len(pw) != 14 {
		t.Fatalf("generated password %q", pw)
	}
	if _, _, err := f.ids.SignIn(context.Background(), "teacher@example.com", pw); err != nil {
		t.Fatalf("sign in with generated password: %v", err)
	}

	tok, _ := out["reveal_token"].(string)
	if tok == "" {
		t.Fatal("no reveal token")
	}
	res, got := f.post(t, "/reveal-credential", "", map[string]string{"token": tok})
	if res.StatusCode != http.StatusOK || got["password"] != pw || got["email"] != "teacher@example.com" {
		t.Fatalf("reveal: %d %v", res.StatusCode, got)
	}
	res, _ = f.post(t, "/reveal-credential", "", map[string]string{"token": tok})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("second reveal status = %d, want 400", res.StatusCode)
	}
}

func TestSchoolAdminBoundaries(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"other school", map[string]string{"email": "a@example.com", "password": "secret123", "role": "student", "school_id": "s2"}, http.StatusForbidden},
		{"admin role", map[string]string{"email": "b@example.com", "password": "secret123", "role": "admin"}, http.StatusForbidden},
		{"bad role", map[string]string{"email": "c@example.com", "password": "secret123", "role": "janitor"}, http.StatusBadRequest},
		{"defaults own school", map[string]string{"email": "d@example.com", "password": "secret123", "role": "student"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, out := f.post(t, "/create-user", f.tokens["sa1"], tc.body)
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (%v)", res.StatusCode, tc.want, out)
			}
		})
	}
	res, _ := f.post(t, "/create-user", f.tokens["sa1"], map[string]string{"email": "d@example.com", "password": "secret123", "role": "student"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate email status = %d, want 400", res.StatusCode)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)

	res, _ := f.post(t, "/delete-user", f.tokens["st1"], map[string]string{"userId": "u-st2"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("student delete status = %d", res.StatusCode)
	}
	res, _ = f.post(t, "/delete-user", f.tokens["sa1"], map[string]string{"userId": "u-st2"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-school delete status = %d", res.StatusCode)
	}
	res, _ = f.post(t, "/delete-user", f.tokens["sa1"], map[string]string{})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id status = %d", res.StatusCode)
	}

	res, out := f.post(t, "/delete-user", f.tokens["sa1"], map[string]string{"userId": "u-st1"})
	if res.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("delete: %d %v", res.StatusCode, out)
	}
	res, _ = f.post(t, "/delete-user", f.tokens["admin"], map[string]string{"userId": "u-st1"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("delete missing user status = %d, want 400", res.StatusCode)
	}
}

func TestOptionsAnsweredPermissively(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/create-user", "/delete-user"} {
		req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+path, nil)
		req.Header.Set("Origin", "https://elsewhere.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s preflight status = %d", path, res.StatusCode)
		}
		if got := res.Header.Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("%s allow-origin = %q", path, got)
		}

		plain, _ := http.NewRequest(http.MethodOptions, f.srv.URL+path, nil)
		res, err = http.DefaultClient.Do(plain)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK || res.Header.Get("Access-Control-Allow-Headers") == "" {
			t.Fatalf("%s plain OPTIONS: %d %v", path, res.StatusCode, res.Header)
		}
	}
}
