package httpx

import (
	"log/slog"
	"net/http"

	"github.com/echofi/kyc-service/internal/service"
)

// RouterServices groups the services the router exposes over HTTP.
type RouterServices struct {
	Verification *service.VerificationService
	Logger       *slog.Logger
}

// NewRouter builds the HTTP handler tree for the verification API.
func NewRouter(svcs RouterServices) http.Handler {
	logger := svcs.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	registerKYCRoutes(mux, svcs)
	registerAdminRoutes(mux, svcs)

	// Outermost first: recover wraps logging so a panic is still logged
	// with the request's method and path.
	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)

	return handler
}

func registerKYCRoutes(mux *http.ServeMux, svcs RouterServices) {
	h := &KYCHandlers{Svc: svcs.Verification}

	mux.HandleFunc("POST /api/v1/kyc/submit", h.Submit)
	mux.HandleFunc("GET /api/v1/kyc/status/{ticket_id}", h.Status)
	mux.HandleFunc("GET /api/v1/kyc/tiers", h.Tiers)
	mux.HandleFunc("GET /api/v1/kyc/user/{subject_id}/status", h.SubjectStatus)
	mux.HandleFunc("DELETE /api/v1/kyc/user/{subject_id}/data", h.EraseSubject)
}

func registerAdminRoutes(mux *http.ServeMux, svcs RouterServices) {
	h := &AdminHandlers{Svc: svcs.Verification}

	mux.HandleFunc("GET /api/v1/admin/pending", h.PendingReviews)
	mux.HandleFunc("POST /api/v1/admin/review/{ticket_id}", h.Review)
	mux.HandleFunc("GET /api/v1/admin/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/admin/dashboard", h.Dashboard)
	mux.HandleFunc("GET /api/v1/admin/audit/{ticket_id}", h.AuditTrail)
}
