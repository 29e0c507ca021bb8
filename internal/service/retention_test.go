package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/domain/model"
	"github.com/echofi/kyc-service/internal/testutil"
)

func retentionTestConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Interval:     time.Hour,
		RecordWindow: 43800 * time.Hour,
		AuditWindow:  61320 * time.Hour,
		BatchSize:    500,
	}
}

func TestNewRetentionServiceValidation(t *testing.T) {
	_, err := NewRetentionService(RetentionServiceOptions{Audit: &fakeAuditRepo{}})
	require.Error(t, err)

	_, err = NewRetentionService(RetentionServiceOptions{Jobs: newFakeJobRepo()})
	require.Error(t, err)
}

func TestRetentionService_Sweep_RecordsCleanupAudit(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.anonymizedCount = 42
	audit := &fakeAuditRepo{}

	svc, err := NewRetentionService(RetentionServiceOptions{
		Jobs:   jobs,
		Audit:  audit,
		Config: retentionTestConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(context.Background()))

	require.True(t, audit.hasAction(model.AuditActionDataCleanup))
	event := audit.events[0]
	assert.Empty(t, event.JobID, "cleanup summary is system scoped")
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), details["records_anonymized"])
}

func TestRetentionService_Sweep_NoAuditWhenNothingExpired(t *testing.T) {
	jobs := newFakeJobRepo()
	audit := &fakeAuditRepo{}

	svc, err := NewRetentionService(RetentionServiceOptions{
		Jobs:   jobs,
		Audit:  audit,
		Config: retentionTestConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(context.Background()))
	assert.False(t, audit.hasAction(model.AuditActionDataCleanup))
}

func TestRetentionService_Sweep_ArchivesWithAuditWindowCutoff(t *testing.T) {
	jobs := newFakeJobRepo()
	audit := &fakeAuditRepo{archiveCount: 7}
	tp := testutil.NewTestTimeProvider(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	cfg := retentionTestConfig()
	svc, err := NewRetentionService(RetentionServiceOptions{
		Jobs:         jobs,
		Audit:        audit,
		Config:       cfg,
		TimeProvider: tp,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, tp.Now().Add(-cfg.AuditWindow), audit.archiveArg)
	assert.Equal(t, 2, audit.archiveCalls, "loops until a batch comes back empty")
}

func TestRetentionService_Run_StopsOnCancel(t *testing.T) {
	svc, err := NewRetentionService(RetentionServiceOptions{
		Jobs:   newFakeJobRepo(),
		Audit:  &fakeAuditRepo{},
		Config: retentionTestConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a graceful stop")
	case <-time.After(2 * time.Second):
		t.Fatal("retention loop did not stop after cancel")
	}
}
