package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/salescope/salescope-api/internal/authz"
	"github.com/salescope/salescope-api/internal/handlers"
	"github.com/salescope/salescope-api/internal/models"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	health *handlers.HealthHandler,
	dataSources *handlers.DataSourceHandler,
	syncH *handlers.SyncHandler,
	reconcileH *handlers.ReconcileHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", health.Check).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.Handle("/data-sources",
		authz.RequireRoleHandler(models.RoleEditor, http.HandlerFunc(dataSources.Create))).Methods(http.MethodPost)
	api.Handle("/data-sources",
		authz.RequireRoleHandler(models.RoleViewer, http.HandlerFunc(dataSources.List))).Methods(http.MethodGet)
	api.Handle("/data-sources/{id}",
		authz.RequireRoleHandler(models.RoleViewer, http.HandlerFunc(dataSources.Get))).Methods(http.MethodGet)

	api.Handle("/sync",
		authz.RequireRoleHandler(models.RoleEditor, http.HandlerFunc(syncH.Trigger))).Methods(http.MethodPost)
	api.Handle("/sync/progress",
		authz.RequireRoleHandler(models.RoleViewer, http.HandlerFunc(syncH.Progress))).Methods(http.MethodGet)

	api.Handle("/reconcile",
		authz.RequireRoleHandler(models.RoleAdmin, http.HandlerFunc(reconcileH.Run))).Methods(http.MethodPost)
	api.Handle("/reconcile/reports",
		authz.RequireRoleHandler(models.RoleViewer, http.HandlerFunc(reconcileH.ListReports))).Methods(http.MethodGet)

	return router
}
