package httpx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/internal/domain/model"
)

func TestSubmit_Success(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/kyc/submit", validSubmission("subject-1"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var view model.StatusResponse
	decodeBody(t, w, &view)
	assert.NotEmpty(t, view.TicketID)
	assert.Equal(t, model.JobStatusPending, view.Status)
	assert.False(t, view.AutoDecided)
}

func TestSubmit_InvalidJSON(t *testing.T) {
	f := newRouterFixture(t)

	w := f.doRaw(t, http.MethodPost, "/api/v1/kyc/submit", `{"subject_id":`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "invalid_json", body["error"])
}

func TestSubmit_UnknownFieldRejected(t *testing.T) {
	f := newRouterFixture(t)

	req := validSubmission("subject-unknown")
	req["ticket_id"] = "not-allowed"
	w := f.do(t, http.MethodPost, "/api/v1/kyc/submit", req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_ValidationError(t *testing.T) {
	f := newRouterFixture(t)

	req := validSubmission("subject-2")
	req["full_name"] = ""
	w := f.do(t, http.MethodPost, "/api/v1/kyc/submit", req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "validation", body["error"])
	assert.Contains(t, body["message"], "full name")
}

func TestSubmit_ActiveConflict(t *testing.T) {
	f := newRouterFixture(t)

	first := f.do(t, http.MethodPost, "/api/v1/kyc/submit", validSubmission("subject-3"))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/kyc/submit", validSubmission("subject-3"))
	require.Equal(t, http.StatusConflict, second.Code)

	var body map[string]string
	decodeBody(t, second, &body)
	assert.Equal(t, "conflict", body["error"])
}

func TestStatus_Success(t *testing.T) {
	f := newRouterFixture(t)
	job := f.jobs.add(&model.VerificationJob{
		SubjectID: "subject-4",
		Status:    model.JobStatusManualReview,
	})

	w := f.do(t, http.MethodGet, "/api/v1/kyc/status/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view model.StatusResponse
	decodeBody(t, w, &view)
	assert.Equal(t, job.ID, view.TicketID)
	assert.Equal(t, model.JobStatusManualReview, view.Status)
}

func TestStatus_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/kyc/status/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "not_found", body["error"])
}

func TestTiers(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/kyc/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tiers []model.TierInfo `json:"tiers"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Tiers, 3)
	assert.Equal(t, 0, body.Tiers[0].Tier)
	assert.Equal(t, 2, body.Tiers[2].Tier)
}

func TestSubjectStatus(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{SubjectID: "subject-5", Status: model.JobStatusRejected})
	f.jobs.add(&model.VerificationJob{SubjectID: "subject-5", Status: model.JobStatusPending})
	f.jobs.add(&model.VerificationJob{SubjectID: "other", Status: model.JobStatusPending})

	w := f.do(t, http.MethodGet, "/api/v1/kyc/user/subject-5/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SubjectID     string                 `json:"subject_id"`
		Verifications []model.StatusResponse `json:"verifications"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, "subject-5", body.SubjectID)
	assert.Len(t, body.Verifications, 2)
}

func TestEraseSubject(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.add(&model.VerificationJob{
		SubjectID:   "subject-6",
		Status:      model.JobStatusRejected,
		FullName:    "Jane Smith",
		DocFrontRef: "docs/front.jpg",
	})

	w := f.do(t, http.MethodDelete, "/api/v1/kyc/user/subject-6/data", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RecordsErased int64 `json:"records_erased"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, int64(1), body.RecordsErased)
}

func TestEraseSubject_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodDelete, "/api/v1/kyc/user/unknown/data", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	head := f.do(t, http.MethodHead, "/healthz", nil)
	require.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.String())
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/kyc/submit", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
