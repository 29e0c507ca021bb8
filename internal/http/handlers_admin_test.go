package httpx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/service"
)

func TestPendingReviews(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{SubjectID: "subject-a", Status: model.JobStatusManualReview})
	f.jobs.add(&model.VerificationJob{SubjectID: "subject-b", Status: model.JobStatusPassed})

	w := f.do(t, http.MethodGet, "/api/v1/admin/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Pending []*model.VerificationJob `json:"pending"`
		Count   int                      `json:"count"`
	}
	decodeBody(t, w, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "subject-a", body.Pending[0].SubjectID)
}

func TestReview_Approve(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{
		SubjectID:     "subject-c",
		Status:        model.JobStatusManualReview,
		RequestedTier: 2,
	})

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/"+job.ID, map[string]any{
		"reviewer_id": "reviewer-1",
		"decision":    "approved",
		"note":        "documents look genuine",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var view model.StatusResponse
	decodeBody(t, w, &view)
	assert.Equal(t, model.JobStatusPassed, view.Status)
	assert.Equal(t, 2, view.Tier)
	assert.False(t, view.AutoDecided)
	assert.NotNil(t, view.ReviewedAt)
}

func TestReview_Reject(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{
		SubjectID:     "subject-d",
		Status:        model.JobStatusManualReview,
		RequestedTier: 1,
	})

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/"+job.ID, map[string]any{
		"reviewer_id": "reviewer-1",
		"decision":    "rejected",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var view model.StatusResponse
	decodeBody(t, w, &view)
	assert.Equal(t, model.JobStatusRejected, view.Status)
	assert.Equal(t, 0, view.Tier)
}

func TestReview_InvalidDecision(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{SubjectID: "subject-e", Status: model.JobStatusManualReview})

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/"+job.ID, map[string]any{
		"reviewer_id": "reviewer-1",
		"decision":    "maybe",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReview_TicketInBodyRejected(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{SubjectID: "subject-f", Status: model.JobStatusManualReview})

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/"+job.ID, map[string]any{
		"ticket_id":   "spoofed",
		"reviewer_id": "reviewer-1",
		"decision":    "approved",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "invalid_json", body["error"])
}

func TestReview_InvalidState(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{SubjectID: "subject-g", Status: model.JobStatusPassed})

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/"+job.ID, map[string]any{
		"reviewer_id": "reviewer-1",
		"decision":    "approved",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "invalid_state", body["error"])
}

func TestReview_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/admin/review/missing", map[string]any{
		"reviewer_id": "reviewer-1",
		"decision":    "approved",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{SubjectID: "s1", Status: model.JobStatusPassed})
	f.jobs.add(&model.VerificationJob{SubjectID: "s2", Status: model.JobStatusRejected})
	f.jobs.add(&model.VerificationJob{SubjectID: "s3", Status: model.JobStatusManualReview})

	w := f.do(t, http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stats model.JobStats `json:"stats"`
		Total int            `json:"total"`
		Days  int            `json:"days"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 1, body.Stats.Passed)
	assert.Equal(t, 0, body.Days)
}

func TestStats_WithDaysWindow(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{SubjectID: "s1", Status: model.JobStatusPassed})

	w := f.do(t, http.MethodGet, "/api/v1/admin/stats?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Days int `json:"days"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, 7, body.Days)
}

func TestDashboard(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{SubjectID: "s1", Status: model.JobStatusManualReview})
	f.jobs.add(&model.VerificationJob{SubjectID: "s2", Status: model.JobStatusPending})

	w := f.do(t, http.MethodGet, "/api/v1/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dash service.Dashboard
	decodeBody(t, w, &dash)
	assert.Equal(t, 2, dash.Total)
	assert.Equal(t, 1, dash.Stats.ManualReview)
	assert.Len(t, dash.PendingReview, 1)
}

func TestAuditTrail(t *testing.T) {
	f := newRouterFixture(t)

	submit := f.do(t, http.MethodPost, "/api/v1/kyc/submit", validSubmission("subject-audit"))
	require.Equal(t, http.StatusAccepted, submit.Code)

	var view model.StatusResponse
	decodeBody(t, submit, &view)

	w := f.do(t, http.MethodGet, "/api/v1/admin/audit/"+view.TicketID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TicketID string              `json:"ticket_id"`
		Events   []*model.AuditEvent `json:"events"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, view.TicketID, body.TicketID)
	require.Len(t, body.Events, 1)
	assert.Equal(t, model.AuditActionSubmit, body.Events[0].Action)
}
