package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/echofi/kyc-service/internal/domain/model"
)

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.VerificationJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

// jobRowData buffers the nullable columns of a verification_jobs row so they
// can be cloned into pointer fields after a successful scan.
type jobRowData struct {
	email, phone, encryptedSnapshot            sql.NullString
	note, reviewerID                           sql.NullString
	extractedFields                            []byte
	faceScore, livenessScore                   sql.NullFloat64
	qualityScore, riskScore                    sql.NullFloat64
	reviewedAt, retentionUntil, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.VerificationJob) error {
	return scanner.Scan(
		&job.ID,
		&job.SubjectID,
		&job.Status,
		&job.Tier,
		&job.RequestedTier,
		&job.FullName,
		&job.DateOfBirth,
		&job.Address,
		&d.email,
		&d.phone,
		&job.DocFrontRef,
		&job.DocBackRef,
		&job.SelfieRef,
		&d.extractedFields,
		&d.faceScore,
		&d.livenessScore,
		&d.qualityScore,
		&d.riskScore,
		&job.Unscored,
		&d.encryptedSnapshot,
		&job.AutoDecided,
		&d.note,
		&d.reviewerID,
		&job.SubmittedAt,
		&d.reviewedAt,
		&d.retentionUntil,
		&d.leaseExpiresAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.VerificationJob) error {
	job.Email = cloneNullableString(d.email)
	job.Phone = cloneNullableString(d.phone)
	job.EncryptedSnapshot = cloneNullableString(d.encryptedSnapshot)
	job.Note = cloneNullableString(d.note)
	job.ReviewerID = cloneNullableString(d.reviewerID)
	job.FaceScore = cloneNullableFloat(d.faceScore)
	job.LivenessScore = cloneNullableFloat(d.livenessScore)
	job.QualityScore = cloneNullableFloat(d.qualityScore)
	job.RiskScore = cloneNullableFloat(d.riskScore)
	job.ReviewedAt = cloneNullableTime(d.reviewedAt)
	job.RetentionUntil = cloneNullableTime(d.retentionUntil)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)

	if len(d.extractedFields) > 0 {
		fields := &model.ExtractedFields{}
		if err := json.Unmarshal(d.extractedFields, fields); err != nil {
			return fmt.Errorf("decode extracted fields: %w", err)
		}
		job.ExtractedFields = fields
	}
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.VerificationJob, error) {
	job := &model.VerificationJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
