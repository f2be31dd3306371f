package rbac

import (
	"net/http"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/session"
)

// Default is the checker the route middleware uses.
var Default = NewChecker(nil)

var errForbidden = apierr.New(apierr.KindForbidden, "forbidden", "forbidden")

func roleOf(r *http.Request) session.Role {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	return s.Role
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleOf(r)
			if role == "" || !Default.Can(role, perm) {
				apierr.Write(w, r, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleOf(r)
			if role == "" || !Default.CanAny(role, perms...) {
				apierr.Write(w, r, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
