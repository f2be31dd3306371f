package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/session"
)

var (
	ErrMissingBearer = apierr.New(apierr.KindAuthRequired, "missing_bearer", "authorization required")
	// ErrNoAccount is returned for a valid token whose user no longer has a
	// profile, e.g. after an admin deleted the account.
	ErrNoAccount = apierr.New(apierr.KindAuthRequired, "account_not_found", "account no longer exists")
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

type ProfileSource interface {
	ProfileByUserID(ctx context.Context, userID string) (school.Profile, error)
}

// Authenticator turns a bearer token into a Session. Profiles are cached per
// user until an identity event for that user arrives.
type Authenticator struct {
	tokens   TokenVerifier
	profiles ProfileSource

	mu    sync.RWMutex
	cache map[string]session.Session
}

func NewAuthenticator(tokens TokenVerifier, profiles ProfileSource) *Authenticator {
	return &Authenticator{tokens: tokens, profiles: profiles, cache: map[string]session.Session{}}
}

func (a *Authenticator) Invalidate(userID string) {
	a.mu.Lock()
	delete(a.cache, userID)
	a.mu.Unlock()
}

// HandleIdentityEvent is registered with identity.Provider.OnChange.
func (a *Authenticator) HandleIdentityEvent(e identity.Event) { a.Invalidate(e.UserID) }

// Resolve verifies the token and loads the caller's profile. The role always
// comes from the profile, never from the token claims.
func (a *Authenticator) Resolve(ctx context.Context, token string) (session.Session, error) {
	if token == "" {
		return session.Session{}, ErrMissingBearer
	}
	claims, err := a.tokens.Verify(ctx, token)
	if err != nil {
		return session.Session{}, err
	}

	a.mu.RLock()
	s, ok := a.cache[claims.Sub]
	a.mu.RUnlock()
	if !ok {
		p, err := a.profiles.ProfileByUserID(ctx, claims.Sub)
		switch {
		case err == nil:
			s = p.Session()
			a.mu.Lock()
			a.cache[claims.Sub] = s
			a.mu.Unlock()
		case errors.Is(err, school.ErrProfileNotFound):
			return session.Session{}, ErrNoAccount
		default:
			return session.Session{}, err
		}
	}
	s.TokenID = claims.ID
	return s, nil
}

// Middleware requires a valid bearer token and stores the Session in the request context.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := a.Resolve(r.Context(), BearerToken(r))
			if err != nil {
				apierr.Write(w, r, err)
				return
			}
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", s.UserID).Str("role", string(s.Role))
			})
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

var errWrongRole = apierr.New(apierr.KindForbidden, "forbidden", "forbidden")

// RequireRoles applies a session.Guard to the request.
func RequireRoles(roles ...session.Role) func(http.Handler) http.Handler {
	g := session.Require(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			var sp *session.Session
			if ok {
				sp = &s
			}
			d := g.Check(sp)
			switch {
			case d.Allowed:
				next.ServeHTTP(w, r)
			case d.AuthRequired:
				apierr.Write(w, r, ErrMissingBearer)
			default:
				apierr.Write(w, r, errWrongRole)
			}
		})
	}
}
