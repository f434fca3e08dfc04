package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/assistant"
	"github.com/garnizeh/estate/internal/inquiry"
	"github.com/garnizeh/estate/internal/jobs"
	"github.com/garnizeh/estate/internal/listing"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/repository"
)

// Deps are the collaborators the router serves. Assistant and Jobs may be nil.
type Deps struct {
	Users         repository.UserRepo
	Listings      *listing.Service
	Inquiries     *inquiry.Service
	Assistant     *assistant.Engine
	Jobs          *jobs.Repository
	Validator     *validation.Validator
	JWTSecret     string
	TokenDuration time.Duration
	Timeout       time.Duration
	Checks        []Check
	Version       string
	BuildTime     string
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(TimeoutMiddleware(d.Timeout))

	authn := NewAuthenticator(d.Users, d.JWTSecret)
	systemHandler := &SystemHandler{Checks: d.Checks}
	authHandler := NewAuthHandler(d.Users, d.Validator, d.JWTSecret, d.TokenDuration)
	propertiesHandler := NewPropertiesHandler(d.Listings, d.Assistant)
	inquiriesHandler := NewInquiriesHandler(d.Inquiries)
	assistantHandler := NewAssistantHandler(d.Assistant)
	adminHandler := NewAdminHandler(d.Listings, d.Assistant, d.Jobs)

	// Preflight requests for any path; CORSMiddleware answers them.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", systemHandler.ReadyHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/signup", authHandler.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", authHandler.Signin).Methods(http.MethodPost)

	// Public reads; a token, when sent, widens visibility.
	public := r.PathPrefix("/api").Subrouter()
	public.Use(authn.Optional)
	public.HandleFunc("/properties", propertiesHandler.List).Methods(http.MethodGet)
	public.HandleFunc("/properties/semantic", propertiesHandler.Semantic).Methods(http.MethodGet)
	public.HandleFunc("/properties/{id}", propertiesHandler.Get).Methods(http.MethodGet)

	// Protected routes
	private := r.PathPrefix("/api").Subrouter()
	private.Use(authn.Required)
	private.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)

	private.HandleFunc("/properties", propertiesHandler.Create).Methods(http.MethodPost)
	private.HandleFunc("/properties/my/properties", propertiesHandler.ListMine).Methods(http.MethodGet)
	private.HandleFunc("/properties/{id}", propertiesHandler.Update).Methods(http.MethodPatch)
	private.HandleFunc("/properties/{id}/status", propertiesHandler.UpdateStatus).Methods(http.MethodPatch)
	private.HandleFunc("/properties/{id}", propertiesHandler.Delete).Methods(http.MethodDelete)

	private.HandleFunc("/inquiries", inquiriesHandler.Create).Methods(http.MethodPost)
	private.HandleFunc("/inquiries/my-inquiries", inquiriesHandler.ListMine).Methods(http.MethodGet)
	private.HandleFunc("/inquiries/received", inquiriesHandler.ListReceived).Methods(http.MethodGet)
	private.HandleFunc("/inquiries/{id}", inquiriesHandler.Get).Methods(http.MethodGet)
	private.HandleFunc("/inquiries/{id}", inquiriesHandler.Update).Methods(http.MethodPatch)
	private.HandleFunc("/inquiries/{id}", inquiriesHandler.Delete).Methods(http.MethodDelete)

	private.HandleFunc("/assistant/chat", assistantHandler.Chat).Methods(http.MethodPost)

	private.HandleFunc("/admin/stats", adminHandler.Stats).Methods(http.MethodGet)
	private.HandleFunc("/admin/insights", adminHandler.Insights).Methods(http.MethodGet)
	private.HandleFunc("/admin/jobs", adminHandler.Jobs).Methods(http.MethodGet)

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{Error: &errorBody{Kind: apperr.KindNotFound, Message: "route not found"}})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: &errorBody{Kind: apperr.KindValidation, Message: "method not allowed"}})
}
