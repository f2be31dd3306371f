package rbac

import (
	"sort"
	"strings"

	"github.com/mind-engage/schooltests/internal/session"
)

// Checker answers permission questions against a role table. Table entries
// may be exact permissions, "<area>:*" or "*".
type Checker struct {
	table map[session.Role][]string
}

func NewChecker(table map[session.Role][]string) *Checker {
	if table == nil {
		table = RolePermissions
	}
	return &Checker{table: table}
}

func (c *Checker) Can(role session.Role, perm string) bool {
	for _, p := range c.table[role] {
		if grants(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) CanAny(role session.Role, perms ...string) bool {
	for _, p := range perms {
		if c.Can(role, p) {
			return true
		}
	}
	return false
}

// Permissions expands the role's grants into the concrete permission names, sorted.
func (c *Checker) Permissions(role session.Role) []string {
	out := []string{}
	for _, p := range All {
		if c.Can(role, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// grants matches whole areas only: "test:*" covers "test:view", not "tests:view".
func grants(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	area, ok := strings.CutSuffix(pattern, ":*")
	return ok && strings.HasPrefix(perm, area+":")
}
