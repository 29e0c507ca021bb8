package httpx

import (
	"net/http"

	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/service"
)

const (
	defaultPendingLimit   = 50
	defaultDashboardLimit = 10
	defaultAuditLimit     = 100
)

// AdminHandlers bundles the reviewer and reporting endpoints.
type AdminHandlers struct {
	Svc *service.VerificationService
}

// PendingReviews handles GET /api/v1/admin/pending.
func (h *AdminHandlers) PendingReviews(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultPendingLimit)
	jobs, err := h.Svc.PendingReviews(r.Context(), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"pending": jobs, "count": len(jobs)})
}

// Review handles POST /api/v1/admin/review/{ticket_id}.
// The ticket comes from the path; a ticket_id in the body is rejected as an
// unknown field.
func (h *AdminHandlers) Review(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReviewerID string               `json:"reviewer_id"`
		Decision   model.ReviewDecision `json:"decision"`
		Note       *string              `json:"note,omitempty"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	job, err := h.Svc.Review(r.Context(), &model.ReviewRequest{
		TicketID:   r.PathValue("ticket_id"),
		ReviewerID: body.ReviewerID,
		Decision:   body.Decision,
		Note:       body.Note,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job.StatusView())
}

// Stats handles GET /api/v1/admin/stats. An optional days query bounds the
// aggregation window; without it the counts span all jobs.
func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	days := parseIntQuery(r, "days", 0)

	var (
		stats *model.JobStats
		err   error
	)
	if days > 0 {
		stats, err = h.Svc.StatsSince(r.Context(), days)
	} else {
		stats, err = h.Svc.Stats(r.Context())
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
		"total": stats.Total(),
		"days":  days,
	})
}

// Dashboard handles GET /api/v1/admin/dashboard.
func (h *AdminHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultDashboardLimit)
	dash, err := h.Svc.DashboardData(r.Context(), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, dash)
}

// AuditTrail handles GET /api/v1/admin/audit/{ticket_id}.
func (h *AdminHandlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("ticket_id")
	limit := parseIntQuery(r, "limit", defaultAuditLimit)
	events, err := h.Svc.AuditTrail(r.Context(), ticketID, limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ticket_id": ticketID, "events": events})
}
