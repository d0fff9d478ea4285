package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/dashboard"
	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// Services are the collaborators the HTTP layer dispatches to.
type Services struct {
	Engine    *workflow.Engine
	Jobs      repository.JobStore
	Users     *users.Service
	Dashboard *dashboard.Aggregator
	Schemas   *schema.Registry
	// Summary is nil when background summaries are disabled.
	Summary SummaryQueue
	DB      Pinger
}

var (
	allocationRoles = []models.Role{models.RoleAllocater, models.RoleManager, models.RoleAdmin, models.RoleSuperAdmin}
	adminRoles      = []models.Role{models.RoleAdmin, models.RoleSuperAdmin}
)

func SetupRoutes(cfg *config.Config, version, buildTime string, svc Services) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := NewSystemHandler(svc.DB)
	authHandler := NewAuthHandler(svc.Users, cfg.JWTSecret, cfg.TokenDuration)
	jobsHandler := NewJobsHandler(svc.Engine, svc.Jobs, svc.Schemas, svc.Summary)
	notificationsHandler := NewNotificationsHandler(svc.Engine)
	usersHandler := NewUsersHandler(svc.Users)
	dashboardHandler := NewDashboardHandler(svc.Dashboard)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)

	open := r.PathPrefix("/v1/auth").Subrouter()
	open.Use(RateLimitMiddleware(cfg.AuthRate.RPS, cfg.AuthRate.Burst))
	open.HandleFunc("/signup", authHandler.Signup).Methods(http.MethodPost)
	open.HandleFunc("/signin", authHandler.Signin).Methods(http.MethodPost)

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	apiV1.HandleFunc("/me", authHandler.Me).Methods(http.MethodGet)
	apiV1.HandleFunc("/signout", authHandler.Signout).Methods(http.MethodPost)

	// Jobs: role checks beyond authentication live in the workflow engine
	apiV1.HandleFunc("/jobs", jobsHandler.Drop).Methods(http.MethodPost)
	apiV1.HandleFunc("/jobs/{id:[0-9]+}", jobsHandler.Get).Methods(http.MethodGet)
	apiV1.HandleFunc("/jobs/{id:[0-9]+}/actions", jobsHandler.Apply).Methods(http.MethodPost)

	apiV1.HandleFunc("/notifications", notificationsHandler.List).Methods(http.MethodGet)
	apiV1.HandleFunc("/notifications/unread", notificationsHandler.UnreadCount).Methods(http.MethodGet)
	apiV1.HandleFunc("/notifications/read", notificationsHandler.MarkAllRead).Methods(http.MethodPost)
	apiV1.HandleFunc("/notifications/{id:[0-9]+}/read", notificationsHandler.MarkRead).Methods(http.MethodPost)

	// Dashboards
	dash := apiV1.PathPrefix("/dashboard").Subrouter()
	dash.Handle("/writer", roles(dashboardHandler.Writer, models.RoleWriter)).Methods(http.MethodGet)
	dash.Handle("/process", roles(dashboardHandler.Process, models.RoleProcessTeam)).Methods(http.MethodGet)
	dash.Handle("/marketing", roles(dashboardHandler.Marketing, models.RoleMarketing)).Methods(http.MethodGet)
	dash.Handle("/accounts", roles(dashboardHandler.Accounts, append([]models.Role{models.RoleAccounts}, adminRoles...)...)).Methods(http.MethodGet)
	dash.Handle("/allocater", roles(dashboardHandler.Allocater, allocationRoles...)).Methods(http.MethodGet)
	dash.Handle("/in-progress", roles(dashboardHandler.InProgress, allocationRoles...)).Methods(http.MethodGet)
	dash.Handle("/assigned", roles(dashboardHandler.Assigned, allocationRoles...)).Methods(http.MethodGet)
	dash.Handle("/completed", roles(dashboardHandler.Completed, allocationRoles...)).Methods(http.MethodGet)
	dash.Handle("/jobs", roles(dashboardHandler.AllJobs, allocationRoles...)).Methods(http.MethodGet)
	dash.Handle("/admin", roles(dashboardHandler.SuperAdmin, models.RoleSuperAdmin)).Methods(http.MethodGet)
	dash.Handle("/anomalies", roles(dashboardHandler.Anomalies, adminRoles...)).Methods(http.MethodGet)

	// User administration
	admin := apiV1.PathPrefix("/users").Subrouter()
	admin.Use(RequireRoles(adminRoles...))
	admin.HandleFunc("", usersHandler.List).Methods(http.MethodGet)
	admin.HandleFunc("", usersHandler.Create).Methods(http.MethodPost)
	admin.HandleFunc("/pending", usersHandler.Pending).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}/approve", usersHandler.Approve).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/role", usersHandler.SetRole).Methods(http.MethodPut)
	admin.HandleFunc("/{id:[0-9]+}", usersHandler.Delete).Methods(http.MethodDelete)

	return r
}

func roles(h http.HandlerFunc, allowed ...models.Role) http.Handler {
	return RequireRoles(allowed...)(h)
}
