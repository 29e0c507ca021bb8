// Package devseed populates a development database with sample verification
// submissions so the API and admin surfaces have data to show.
package devseed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
	"github.com/echofi/kyc-service/internal/service"
)

// Run submits the sample applications. Seeding is idempotent: a subject with
// an active verification is skipped rather than duplicated.
func Run(ctx context.Context, svc *service.VerificationService, logger *slog.Logger) error {
	failures := 0
	for _, req := range sampleSubmissions() {
		created, err := submit(ctx, svc, req)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed submission", "subject_id", req.SubjectID, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "submission already active"
			if created {
				msg = "seeded submission"
			}
			logger.InfoContext(ctx, msg, "subject_id", req.SubjectID)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func submit(ctx context.Context, svc *service.VerificationService, req *model.SubmissionRequest) (bool, error) {
	if _, err := svc.Submit(ctx, req); err != nil {
		if apperrors.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func sampleSubmissions() []*model.SubmissionRequest {
	return []*model.SubmissionRequest{
		{
			SubjectID:     "dev-subject-alice",
			FullName:      "Alice Nguyen",
			DateOfBirth:   "1990-02-14",
			Address:       "12 Harbour St, Da Nang",
			DocFrontRef:   "dev/alice/front.jpg",
			DocBackRef:    "dev/alice/back.jpg",
			SelfieRef:     "dev/alice/selfie.jpg",
			RequestedTier: 2,
		},
		{
			SubjectID:     "dev-subject-bob",
			FullName:      "Bob Tran",
			DateOfBirth:   "1984-11-30",
			Address:       "8 Riverside Ave, Hanoi",
			DocFrontRef:   "dev/bob/front.jpg",
			DocBackRef:    "dev/bob/back.jpg",
			SelfieRef:     "dev/bob/selfie.jpg",
			RequestedTier: 1,
		},
		{
			SubjectID:     "dev-subject-carol",
			FullName:      "Carol Pham",
			DateOfBirth:   "1997-06-08",
			Address:       "45 Market Lane, Ho Chi Minh City",
			DocFrontRef:   "dev/carol/front.jpg",
			DocBackRef:    "dev/carol/back.jpg",
			SelfieRef:     "dev/carol/selfie.jpg",
			RequestedTier: 2,
		},
	}
}
