package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/copier"

	"github.com/mind-engage/schooltests/internal/apierr"
	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/rbac"
	"github.com/mind-engage/schooltests/internal/session"
)

type signUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	SchoolID  string `json:"school_id" validate:"required"`
	ClassName string `json:"class_name" validate:"max=50"`
}

func SignUpHandler(ids *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signUpRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		var in identity.NewUser
		if err := copier.Copy(&in, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		u, err := ids.SignUp(r.Context(), in)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		apierr.WriteJSON(w, http.StatusCreated, u)
	}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signInResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	User        identity.User   `json:"user"`
	Session     session.Session `json:"session"`
}

func SignInHandler(ids *identity.Provider, authn *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		tok, u, err := ids.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		s, err := authn.Resolve(r.Context(), tok)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, signInResponse{AccessToken: tok, TokenType: "Bearer", User: u, Session: s})
	}
}

func SignOutHandler(ids *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ids.SignOut(r.Context(), auth.BearerToken(r)); err != nil {
			apierr.Write(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionResponse struct {
	session.Session
	Permissions []string `json:"permissions"`
}

// SessionHandler returns the caller's current session and what it may do.
func SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		writeJSON(w, sessionResponse{Session: s, Permissions: rbac.Default.Permissions(s.Role)})
	}
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	ClassName *string `json:"class_name" validate:"omitempty,max=50"`
}

func UpdateProfileHandler(ids *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		var req profileUpdateRequest
		if err := decode(r, &req); err != nil {
			apierr.Write(w, r, err)
			return
		}
		// Students may not move themselves between classes.
		if s.Role == session.RoleStudent {
			req.ClassName = nil
		}
		if err := ids.UpdateProfile(r.Context(), s.UserID, identity.ProfileUpdate{
			FirstName: req.FirstName, LastName: req.LastName, ClassName: req.ClassName,
		}); err != nil {
			apierr.Write(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ConfirmEmailHandler marks a self-registered account as confirmed so it can
// sign in. School admins only reach users of their own school.
func ConfirmEmailHandler(ids *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionOf(r)
		if err != nil {
			apierr.Write(w, r, err)
			return
		}
		scope := ""
		if s.Role != session.RoleAdmin {
			scope = s.SchoolID
		}
		if err := ids.ConfirmEmail(r.Context(), chi.URLParam(r, "userID"), scope); err != nil {
			apierr.Write(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NavigationCheckHandler applies the page guard to ?path= for the caller.
// It runs without the auth middleware so anonymous callers get a sign-in redirect.
func NavigationCheckHandler(authn *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sp *session.Session
		if tok := auth.BearerToken(r); tok != "" {
			if s, err := authn.Resolve(r.Context(), tok); err == nil {
				sp = &s
			}
		}
		writeJSON(w, session.CheckPath(r.URL.Query().Get("path"), sp))
	}
}
