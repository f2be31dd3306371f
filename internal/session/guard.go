package session

import "strings"

const (
	SignInPath    = "/auth"
	DashboardPath = "/dashboard"
)

type RoleSet map[Role]struct{}

func Roles(rs ...Role) RoleSet {
	set := make(RoleSet, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// Decision is Allowed, or a redirect to Target.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Target  string `json:"redirect,omitempty"`
	// AuthRequired distinguishes "sign in first" from "wrong role".
	AuthRequired bool `json:"auth_required,omitempty"`
}

func Allow() Decision { return Decision{Allowed: true} }

func Redirect(target string) Decision { return Decision{Target: target} }

// Guard admits sessions whose role is in Required. An empty Required admits any signed-in caller.
type Guard struct {
	Required RoleSet
}

func Require(rs ...Role) Guard { return Guard{Required: Roles(rs...)} }

func (g Guard) Check(s *Session) Decision {
	if s == nil || s.UserID == "" {
		d := Redirect(SignInPath)
		d.AuthRequired = true
		return d
	}
	if len(g.Required) > 0 && !g.Required.Has(s.Role) {
		return Redirect(DashboardPath)
	}
	return Allow()
}

// Pages mirrors the client routes that need a session.
var Pages = map[string]Guard{
	"/dashboard":           {},
	"/profile":             {},
	"/admin/schools":       Require(RoleAdmin),
	"/admin/users":         Require(RoleAdmin, RoleSchoolAdmin),
	"/admin/stats":         Require(RoleAdmin, RoleSchoolAdmin),
	"/admin/tests":         Require(RoleAdmin, RoleSchoolAdmin),
	"/admin/test-stats":    Require(RoleAdmin, RoleSchoolAdmin),
	"/teacher/create-test": Require(RoleTeacher),
	"/teacher/tests":       Require(RoleTeacher),
	"/teacher/classes":     Require(RoleTeacher),
	"/teacher/results":     Require(RoleTeacher),
	"/student/tests":       Require(RoleStudent),
	"/student/results":     Require(RoleStudent),
	"/student/history":     Require(RoleStudent),
	"/student/take-test":   Require(RoleStudent),
}

// CheckPath finds the longest guarded prefix of path; unguarded paths are public.
func CheckPath(path string, s *Session) Decision {
	path = "/" + strings.Trim(path, "/")
	best := ""
	for p := range Pages {
		if (path == p || strings.HasPrefix(path, p+"/")) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return Allow()
	}
	return Pages[best].Check(s)
}
