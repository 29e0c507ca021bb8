// Package testutil provides testing utilities and helpers for the verification service.
package testutil

import (
	"fmt"

	"github.com/echofi/kyc-service/internal/domain/model"
)

// SubmissionBuilder provides a fluent interface for building SubmissionRequest
// objects for testing.
type SubmissionBuilder struct {
	req *model.SubmissionRequest
}

// NewSubmission creates a SubmissionBuilder with sensible defaults.
func NewSubmission() *SubmissionBuilder {
	return &SubmissionBuilder{
		req: &model.SubmissionRequest{
			SubjectID:     "subject-001",
			FullName:      "Jane Smith",
			DateOfBirth:   "27/07/1985",
			Address:       "42 Harbor Lane, Portsmouth",
			DocFrontRef:   "docs/subject-001/front.jpg",
			DocBackRef:    "docs/subject-001/back.jpg",
			SelfieRef:     "docs/subject-001/selfie.jpg",
			RequestedTier: 1,
		},
	}
}

// WithSubject sets the subject id and rewrites the document refs to match.
func (b *SubmissionBuilder) WithSubject(subjectID string) *SubmissionBuilder {
	b.req.SubjectID = subjectID
	b.req.DocFrontRef = fmt.Sprintf("docs/%s/front.jpg", subjectID)
	b.req.DocBackRef = fmt.Sprintf("docs/%s/back.jpg", subjectID)
	b.req.SelfieRef = fmt.Sprintf("docs/%s/selfie.jpg", subjectID)
	return b
}

// WithFullName sets the declared full name.
func (b *SubmissionBuilder) WithFullName(name string) *SubmissionBuilder {
	b.req.FullName = name
	return b
}

// WithDateOfBirth sets the declared date of birth.
func (b *SubmissionBuilder) WithDateOfBirth(dob string) *SubmissionBuilder {
	b.req.DateOfBirth = dob
	return b
}

// WithEmail sets the contact email.
func (b *SubmissionBuilder) WithEmail(email string) *SubmissionBuilder {
	b.req.Email = &email
	return b
}

// WithPhone sets the contact phone number.
func (b *SubmissionBuilder) WithPhone(phone string) *SubmissionBuilder {
	b.req.Phone = &phone
	return b
}

// WithRequestedTier sets the tier the subject is applying for.
func (b *SubmissionBuilder) WithRequestedTier(tier int) *SubmissionBuilder {
	b.req.RequestedTier = tier
	return b
}

// Build returns the constructed SubmissionRequest.
func (b *SubmissionBuilder) Build() *model.SubmissionRequest {
	return b.req
}
