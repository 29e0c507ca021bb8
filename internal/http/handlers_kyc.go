package httpx

import (
	"net/http"

	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/service"
)

// KYCHandlers bundles the public verification endpoints.
type KYCHandlers struct {
	Svc *service.VerificationService
}

// Submit handles POST /api/v1/kyc/submit.
// A successful admission returns 202 with the job's public status view; the
// pipeline picks the ticket up asynchronously.
func (h *KYCHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmissionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job.StatusView())
}

// Status handles GET /api/v1/kyc/status/{ticket_id}.
func (h *KYCHandlers) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Status(r.Context(), r.PathValue("ticket_id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// Tiers handles GET /api/v1/kyc/tiers.
func (h *KYCHandlers) Tiers(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"tiers": h.Svc.Tiers()})
}

// SubjectStatus handles GET /api/v1/kyc/user/{subject_id}/status.
func (h *KYCHandlers) SubjectStatus(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("subject_id")
	views, err := h.Svc.SubjectStatus(r.Context(), subjectID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id":    subjectID,
		"verifications": views,
	})
}

// EraseSubject handles DELETE /api/v1/kyc/user/{subject_id}/data.
// Personal data is anonymized in place and stored images are removed; the
// audit trail keeps a subject-erasure entry.
func (h *KYCHandlers) EraseSubject(w http.ResponseWriter, r *http.Request) {
	count, err := h.Svc.EraseSubject(r.Context(), r.PathValue("subject_id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"records_erased": count})
}
