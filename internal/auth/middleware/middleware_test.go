package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

type fakeTokens map[string]*identity.Claims

func (f fakeTokens) Verify(_ context.Context, tok string) (*identity.Claims, error) {
	c, ok := f[tok]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return c, nil
}

type fakeProfiles struct {
	byUser map[string]school.Profile
	calls  int
}

func (f *fakeProfiles) ProfileByUserID(_ context.Context, userID string) (school.Profile, error) {
	f.calls++
	p, ok := f.byUser[userID]
	if !ok {
		return school.Profile{}, school.ErrProfileNotFound
	}
	return p, nil
}

func newTestAuth() (*Authenticator, *fakeProfiles) {
	tokens := fakeTokens{
		"tok-student": {Sub: "u1", Role: "student"},
		"tok-orphan":  {Sub: "u9", Role: "teacher"},
	}
	tokens["tok-student"].ID = "jti-1"
	profiles := &fakeProfiles{byUser: map[string]school.Profile{
		"u1": {ID: "p1", UserID: "u1", Role: session.RoleStudent, SchoolID: "s1", ClassName: "7A"},
	}}
	return NewAuthenticator(tokens, profiles), profiles
}

func TestResolveCachesUntilInvalidated(t *testing.T) {
	a, profiles := newTestAuth()
	ctx := context.Background()

	s, err := a.Resolve(ctx, "tok-student")
	if err != nil {
		t.Fatal(err)
	}
	if s.ProfileID != "p1" || s.SchoolID != "s1" || s.TokenID != "jti-1" {
		t.Fatalf("unexpected session: %+v", s)
	}
	_, _ = a.Resolve(ctx, "tok-student")
	if profiles.calls != 1 {
		t.Fatalf("want cached profile, got %d lookups", profiles.calls)
	}
	a.HandleIdentityEvent(identity.Event{Kind: identity.EventProfileUpdated, UserID: "u1"})
	_, _ = a.Resolve(ctx, "tok-student")
	if profiles.calls != 2 {
		t.Fatalf("invalidate did not drop cache: %d lookups", profiles.calls)
	}

}

func TestResolveRejectsDeletedAccount(t *testing.T) {
	a, profiles := newTestAuth()
	ctx := context.Background()

	if _, err := a.Resolve(ctx, "tok-orphan"); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("token without a profile: %v", err)
	}

	if _, err := a.Resolve(ctx, "tok-student"); err != nil {
		t.Fatal(err)
	}
	delete(profiles.byUser, "u1")
	a.HandleIdentityEvent(identity.Event{Kind: identity.EventUserDeleted, UserID: "u1"})
	if _, err := a.Resolve(ctx, "tok-student"); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("deleted user still resolves: %v", err)
	}
}

func TestMiddlewareAndRequireRoles(t *testing.T) {
	a, _ := newTestAuth()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := session.FromContext(r.Context())
		w.Header().Set("X-Profile", s.ProfileID)
		w.WriteHeader(http.StatusNoContent)
	})
	h := a.Middleware()(RequireRoles(session.RoleStudent)(ok))
	hTeacher := a.Middleware()(RequireRoles(session.RoleTeacher, session.RoleAdmin)(ok))

	cases := []struct {
		name    string
		handler http.Handler
		auth    string
		want    int
	}{
		{"no header", h, "", http.StatusUnauthorized},
		{"bad token", h, "Bearer nope", http.StatusUnauthorized},
		{"student ok", h, "Bearer tok-student", http.StatusNoContent},
		{"lowercase scheme", h, "bearer tok-student", http.StatusNoContent},
		{"wrong role", hTeacher, "Bearer tok-student", http.StatusForbidden},
		{"no profile", hTeacher, "Bearer tok-orphan", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("want %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
