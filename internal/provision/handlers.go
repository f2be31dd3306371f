// Package provision serves the privileged account endpoints: create-user,
// delete-user and the one-time credential reveal. The handlers are mounted
// by the gateway and also run standalone in cmd/provisiond.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/schooltests/internal/apierr"
	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

var (
	errForbidden     = apierr.New(apierr.KindForbidden, "forbidden", "only admins may manage accounts")
	errOtherSchool   = apierr.New(apierr.KindForbidden, "forbidden", "cannot manage accounts outside your school")
	errAdminRole     = apierr.New(apierr.KindForbidden, "forbidden", "school admins cannot create admins")
	errDeleteSelf    = apierr.Validation("cannot delete your own account")
	errMissingUserID = apierr.Validation("userId is required")
)

// AllowedHeaders are the request headers accepted on cross-origin calls.
var AllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

var validate = validator.New()

type Sessions interface {
	Resolve(ctx context.Context, token string) (session.Session, error)
}

type Accounts interface {
	AdminCreateUser(ctx context.Context, in identity.NewUser) (identity.User, error)
	AdminDeleteUser(ctx context.Context, userID string) error
}

type Profiles interface {
	ProfileByUserID(ctx context.Context, userID string) (school.Profile, error)
}

type Credentials interface {
	Seal(ctx context.Context, userID, email, schoolID, password string) (string, error)
	Reveal(ctx context.Context, token string) (Credential, error)
	DeleteForUser(ctx context.Context, userID string) error
}

type Handler struct {
	Sessions Sessions
	Accounts Accounts
	Profiles Profiles
	Vault    Credentials // optional
	Events   *syncx.EventRepo
}

// Mount registers the provisioning routes on r behind a permissive CORS layer.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(pr chi.Router) {
		pr.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: AllowedHeaders,
			MaxAge:         300,
		}))
		for _, p := range []string{"/create-user", "/delete-user", "/reveal-credential"} {
			pr.Options(p, Preflight)
		}
		pr.Post("/create-user", h.CreateUser)
		pr.Post("/delete-user", h.DeleteUser)
		pr.Post("/reveal-credential", h.RevealCredential)
	})
}

// Preflight answers OPTIONS requests that are not full CORS preflights.
func Preflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(AllowedHeaders, ", "))
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

// fail maps err onto the provisioning status convention: 401, 403, otherwise 400.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch apierr.KindOf(err) {
	case apierr.KindAuthRequired:
		status = http.StatusUnauthorized
	case apierr.KindForbidden:
		status = http.StatusForbidden
	}
	apierr.WriteStatus(w, r, status, err)
}

// caller authenticates the request and requires an admin or school admin
// with a loaded profile.
func (h *Handler) caller(r *http.Request) (session.Session, error) {
	s, err := h.Sessions.Resolve(r.Context(), auth.BearerToken(r))
	if err != nil {
		return s, err
	}
	if s.ProfileID == "" {
		return s, errForbidden
	}
	if s.Role != session.RoleAdmin && s.Role != session.RoleSchoolAdmin {
		return s, errForbidden
	}
	return s, nil
}

type createUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"omitempty,min=6"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"required,oneof=admin school_admin teacher student"`
	SchoolID  string `json:"school_id"`
	ClassName string `json:"class_name" validate:"max=50"`
}

type createUserResponse struct {
	User        identity.User `json:"user"`
	Password    string        `json:"password"`
	RevealToken string        `json:"reveal_token,omitempty"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	s, err := h.caller(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, apierr.Validation("invalid JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(w, r, apierr.Validation("invalid request", err.Error()))
		return
	}
	role := session.Role(req.Role)
	if s.Role == session.RoleSchoolAdmin {
		if role == session.RoleAdmin {
			fail(w, r, errAdminRole)
			return
		}
		if req.SchoolID == "" {
			req.SchoolID = s.SchoolID
		}
		if !s.CanActInSchool(req.SchoolID) {
			fail(w, r, errOtherSchool)
			return
		}
	}
	if role != session.RoleAdmin && req.SchoolID == "" {
		fail(w, r, apierr.Validation("school_id is required for this role"))
		return
	}
	if req.Password == "" {
		if req.Password, err = GeneratePassword(14); err != nil {
			fail(w, r, err)
			return
		}
	}

	u, err := h.Accounts.AdminCreateUser(r.Context(), identity.NewUser{
		Email:        req.Email,
		Password:     req.Password,
		Role:         role,
		SchoolID:     req.SchoolID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ClassName:    req.ClassName,
		EmailConfirm: true,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := createUserResponse{User: u, Password: req.Password}
	if h.Vault != nil {
		tok, err := h.Vault.Seal(r.Context(), u.ID, u.Email, req.SchoolID, req.Password)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("user_id", u.ID).Msg("credential reveal not stored")
		} else {
			resp.RevealToken = tok
		}
	}
	h.Events.Record(r.Context(), syncx.NewEvent(syncx.TypeUserCreated, u.ID, map[string]string{
		"email": u.Email, "role": req.Role, "school_id": req.SchoolID, "by": s.UserID,
	}))
	apierr.WriteJSON(w, http.StatusOK, resp)
}

type deleteUserRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	s, err := h.caller(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req deleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, apierr.Validation("invalid JSON body"))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		fail(w, r, errMissingUserID)
		return
	}
	if req.UserID == s.UserID {
		fail(w, r, errDeleteSelf)
		return
	}
	if s.Role == session.RoleSchoolAdmin {
		target, err := h.Profiles.ProfileByUserID(r.Context(), req.UserID)
		if err != nil {
			if errors.Is(err, school.ErrProfileNotFound) {
				err = errOtherSchool
			}
			fail(w, r, err)
			return
		}
		if !s.CanActInSchool(target.SchoolID) {
			fail(w, r, errOtherSchool)
			return
		}
		if target.Role == session.RoleAdmin {
			fail(w, r, errAdminRole)
			return
		}
	}

	if err := h.Accounts.AdminDeleteUser(r.Context(), req.UserID); err != nil {
		fail(w, r, err)
		return
	}
	if h.Vault != nil {
		if err := h.Vault.DeleteForUser(r.Context(), req.UserID); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("user_id", req.UserID).Msg("credential reveal cleanup failed")
		}
	}
	h.Events.Record(r.Context(), syncx.NewEvent(syncx.TypeUserDeleted, req.UserID, map[string]string{"by": s.UserID}))
	apierr.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RevealCredential hands out a sealed password once. The token is the
// credential, so no bearer is required.
func (h *Handler) RevealCredential(w http.ResponseWriter, r *http.Request) {
	if h.Vault == nil {
		fail(w, r, ErrRevealNotFound)
		return
	}
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, apierr.Validation("invalid JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(w, r, apierr.Validation("token is required"))
		return
	}
	c, err := h.Vault.Reveal(r.Context(), req.Token)
	if err != nil {
		fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, c)
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GeneratePassword returns n characters drawn from crypto/rand.
func GeneratePassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, n)
	for i := range b {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = passwordAlphabet[k.Int64()]
	}
	return string(b), nil
}
