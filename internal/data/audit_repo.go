package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/domain/model"
	apperrors "github.com/echofi/kyc-service/internal/errors"
)

// AuditRepo provides the append-only compliance audit trail for verification jobs.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewAuditRepo creates an AuditRepo backed by the given database handle.
func NewAuditRepo(db *sql.DB, cfg RepoConfig) *AuditRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}

	return &AuditRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const auditColumns = `id, job_id, action, details, archived, timestamp`

// Append records an audit event. Events are never updated or deleted, only
// flagged archived by the retention sweep. An empty JobID records a
// system-scoped event (compliance reports, cleanup summaries) with no job.
func (r *AuditRepo) Append(ctx context.Context, params core.AppendAuditParams) (*model.AuditEvent, error) {
	if params.JobID == "" && !params.Action.SystemScoped() {
		return nil, errors.New("job id is required")
	}
	if params.Action == "" {
		return nil, errors.New("audit action is required")
	}

	details := []byte(`{}`)
	if params.Details != nil {
		var err error
		details, err = json.Marshal(params.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
	}

	var jobID any
	if params.JobID != "" {
		jobID = params.JobID
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO audit_events(id, job_id, action, details, timestamp)
      VALUES ($1, $2, $3, $4, $5)
      RETURNING `+auditColumns, uuid.NewString(), jobID, params.Action, details, r.timeProvider.Now().UTC())

	event, err := scanAuditEvent(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return event, nil
}

// ListByJob returns a job's audit trail in chronological order.
func (r *AuditRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEvent, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.DB.QueryContext(ctx, `
      SELECT `+auditColumns+`
      FROM audit_events
      WHERE job_id = $1
      ORDER BY timestamp ASC, id ASC
      LIMIT $2
    `, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []*model.AuditEvent
	for rows.Next() {
		event, scanErr := scanAuditEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan audit event: %w", scanErr)
		}
		events = append(events, event)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return events, nil
}

// MarkArchivedBefore flags events older than the cutoff as archived so the
// compliance export can distinguish live from cold records.
func (r *AuditRepo) MarkArchivedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.DB.ExecContext(ctx, `
      UPDATE audit_events
      SET archived = TRUE
      WHERE id IN (
        SELECT id FROM audit_events
        WHERE archived = FALSE
          AND timestamp < $1
        ORDER BY timestamp
        LIMIT $2
      )
    `, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected, nil
}

func scanAuditEvent(scanner jobRowScanner) (*model.AuditEvent, error) {
	event := &model.AuditEvent{}
	var (
		details []byte
		jobID   sql.NullString
	)
	if err := scanner.Scan(
		&event.ID,
		&jobID,
		&event.Action,
		&details,
		&event.Archived,
		&event.Timestamp,
	); err != nil {
		return nil, err
	}
	event.JobID = jobID.String

	if len(details) == 0 {
		details = []byte(`{}`)
	}
	event.Details = append(json.RawMessage(nil), details...)
	return event, nil
}
