package model

import "github.com/echofi/kyc-service/internal/domain/mrz"

// ExtractedFields is the Field Parser's structured output. Fields the parser
// could not match stay nil, keeping "absent" distinct from "empty string" for
// downstream scoring.
type ExtractedFields struct {
	FullName         *string `json:"full_name,omitempty"`
	DateOfBirth      *string `json:"date_of_birth,omitempty"`
	DocumentNumber   *string `json:"document_number,omitempty"`
	Address          *string `json:"address,omitempty"`
	IssuingAuthority *string `json:"issuing_authority,omitempty"`
	ExpiryDate       *string `json:"expiry_date,omitempty"`

	// Confidence is the OCR engine's overall confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Authenticity scores for the front and back images in [0,1], when the
	// OCR collaborator provides them.
	FrontAuthenticity *float64 `json:"front_authenticity,omitempty"`
	BackAuthenticity  *float64 `json:"back_authenticity,omitempty"`

	// MRZ is the decoded machine-readable zone, nil when none was found.
	MRZ *mrz.Record `json:"mrz,omitempty"`
}

// Empty reports whether extraction produced nothing at all.
func (f *ExtractedFields) Empty() bool {
	return f == nil || (f.FullName == nil && f.DateOfBirth == nil && f.DocumentNumber == nil &&
		f.Address == nil && f.IssuingAuthority == nil && f.ExpiryDate == nil && f.MRZ == nil)
}
