package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/schooltests/internal/attempt"
	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/exam"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/rbac"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/stats"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

// Deps is everything the API routes call into.
type Deps struct {
	Identity     *identity.Provider
	Auth         *auth.Authenticator
	Schools      *school.Service
	Tests        *exam.Service
	Attempts     *attempt.Manager
	Stats        *stats.SQLSource
	Events       *syncx.EventRepo
	EnableSignUp bool
}

// Mount registers the application API on r.
func Mount(r chi.Router, d Deps) {
	if d.EnableSignUp {
		r.Post("/auth/sign-up", SignUpHandler(d.Identity))
	}
	r.Post("/auth/sign-in", SignInHandler(d.Identity, d.Auth))
	r.Get("/navigation/check", NavigationCheckHandler(d.Auth))

	r.Group(func(pr chi.Router) {
		pr.Use(d.Auth.Middleware())

		pr.Post("/auth/sign-out", SignOutHandler(d.Identity))
		pr.Get("/auth/session", SessionHandler())
		pr.Patch("/profile", UpdateProfileHandler(d.Identity))

		// Schools (admin manages, others see their own)
		pr.With(rbac.Require(rbac.PermSchoolView)).Get("/schools", ListSchoolsHandler(d.Schools))
		pr.With(rbac.Require(rbac.PermSchoolManage)).Post("/schools", CreateSchoolHandler(d.Schools))
		pr.With(rbac.Require(rbac.PermSchoolManage)).Delete("/schools/{schoolID}", DeleteSchoolHandler(d.Schools))

		pr.With(rbac.Require(rbac.PermUserList)).Get("/users", ListUsersHandler(d.Schools))
		pr.With(rbac.Require(rbac.PermUserProvision)).Post("/users/{userID}/confirm-email", ConfirmEmailHandler(d.Identity))

		pr.With(rbac.Require(rbac.PermClassView)).Get("/classes", ListClassesHandler(d.Schools))
		pr.With(rbac.Require(rbac.PermClassView)).Get("/classes/{classID}", GetClassHandler(d.Schools))
		pr.With(rbac.Require(rbac.PermClassManage)).Post("/classes", CreateClassHandler(d.Schools))

		// Authoring
		pr.With(rbac.Require(rbac.PermTestCreate)).Post("/tests", CreateTestHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestCreate)).Get("/tests", ListTestsHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestCreate)).Get("/tests/{testID}", GetTestHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestCreate)).Put("/tests/{testID}/active", SetTestActiveHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestAssign)).Post("/tests/{testID}/assignments", AssignTestHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestAssign)).Get("/tests/{testID}/assignments", ListAssignmentsHandler(d.Tests))
		pr.With(rbac.Require(rbac.PermTestCombine)).Post("/tests/combine", CombineTestsHandler(d.Tests))

		// Student flow
		pr.With(rbac.Require(rbac.PermAttemptTake)).Get("/student/tests", StudentDashboardHandler(d.Tests, d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptTake)).Post("/attempts", StartAttemptHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptTake)).Put("/attempts/{attemptID}/answers", SaveAnswerHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptTake)).Post("/attempts/{attemptID}/cursor", MoveCursorHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptTake)).Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptTake)).Delete("/attempts/{attemptID}", AbandonAttemptHandler(d.Attempts))
		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
			Get("/attempts/{attemptID}", GetAttemptHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptViewOwn)).Get("/results", HistoryHandler(d.Attempts))

		// Reporting
		pr.With(rbac.Require(rbac.PermStatsView)).Get("/stats/rollup", RollupHandler(d.Stats))
		pr.With(rbac.Require(rbac.PermStatsView)).Get("/stats/results", ResultsHandler(d.Stats))
		pr.With(rbac.Require(rbac.PermStatsView)).Get("/stats/classes", ClassOverviewHandler(d.Stats))
		pr.With(rbac.Require(rbac.PermStatsView)).Get("/stats/summary", SummaryHandler(d.Stats))
		pr.With(rbac.Require(rbac.PermStatsExport)).Get("/stats/export", ExportHandler(d.Stats))

		pr.With(rbac.Require(rbac.PermAuditView)).Get("/audit/events", AuditEventsHandler(d.Events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
}
