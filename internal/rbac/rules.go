package rbac

import "github.com/mind-engage/schooltests/internal/session"

// Permission names used by the gateway routes.
const (
	PermSchoolManage   = "school:manage"
	PermSchoolView     = "school:view"
	PermUserList       = "users:list"
	PermUserProvision  = "users:provision"
	PermClassManage    = "class:manage"
	PermClassView      = "class:view"
	PermTestCreate     = "test:create"
	PermTestView       = "test:view"
	PermTestAssign     = "test:assign"
	PermTestCombine    = "test:combine"
	PermAttemptTake    = "attempt:take"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
	PermStatsView      = "stats:view"
	PermStatsExport    = "stats:export"
	PermAuditView      = "audit:view"
)

// All lists every concrete permission.
var All = []string{
	PermSchoolManage, PermSchoolView, PermUserList, PermUserProvision, PermClassManage, PermClassView,
	PermTestCreate, PermTestView, PermTestAssign, PermTestCombine,
	PermAttemptTake, PermAttemptViewOwn, PermAttemptViewAll,
	PermStatsView, PermStatsExport, PermAuditView,
}

var RolePermissions = map[session.Role][]string{
	session.RoleStudent: {
		PermTestView,
		PermAttemptTake,
		PermAttemptViewOwn,
	},
	session.RoleTeacher: {
		PermTestCreate,
		PermTestView,
		PermTestAssign,
		PermTestCombine,
		PermClassView,
		PermUserList,
		PermAttemptViewAll,
		PermStatsView,
		PermStatsExport,
		PermSchoolView,
	},
	session.RoleSchoolAdmin: {
		"test:*",
		"class:*",
		"users:*",
		"stats:*",
		PermAttemptViewAll,
		PermSchoolView,
		PermAuditView,
	},
	session.RoleAdmin: {"*"},
}
