package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

const reportColumns = `id, material_key, material_id, snapshot_title, snapshot_program, snapshot_branch, snapshot_semester,
	snapshot_uploader_id, snapshot_uploader_name, reporter_id, reason, broken_rule_ids, status, reviewer_id,
	moderator_comment, created_at, updated_at`

func scanReport(row rowScanner) (*model.Report, error) {
	var r model.Report
	err := row.Scan(&r.ID, &r.MaterialKey, &r.MaterialID, &r.Snapshot.Title, &r.Snapshot.Program, &r.Snapshot.Branch,
		&r.Snapshot.Semester, &r.Snapshot.UploaderID, &r.Snapshot.UploaderName, &r.ReporterID, &r.Reason,
		&r.BrokenRuleIDs, &r.Status, &r.ReviewerID, &r.ModeratorComment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReport inserts a pending report. A second report for the same
// (material, reporter) pair fails with apperr.ErrDuplicate from the unique
// constraint. A non-zero since makes the insert conditional on the reporter
// having filed nothing after it, else apperr.ErrStale. Submits by one reporter
// are serialized on an advisory lock.
func (s *Store) CreateReport(ctx context.Context, r *model.Report, since time.Time) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if !since.IsZero() {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.ReporterID); err != nil {
				return fmt.Errorf("lock reporter: %w", err)
			}
			var recent bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM reports WHERE reporter_id=$1 AND created_at > $2)
			`, r.ReporterID, since).Scan(&recent)
			if err != nil {
				return fmt.Errorf("probe cooldown: %w", err)
			}
			if recent {
				return apperr.ErrStale
			}
		}
		return insertReport(ctx, tx, r)
	})
}

func insertReport(ctx context.Context, tx pgx.Tx, r *model.Report) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reports (id, material_key, material_id, snapshot_title, snapshot_program, snapshot_branch,
			snapshot_semester, snapshot_uploader_id, snapshot_uploader_name, reporter_id, reason, broken_rule_ids,
			status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.MaterialKey, r.MaterialID, r.Snapshot.Title, r.Snapshot.Program, r.Snapshot.Branch,
		r.Snapshot.Semester, r.Snapshot.UploaderID, r.Snapshot.UploaderName, r.ReporterID, r.Reason, r.BrokenRuleIDs,
		r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", translate(err))
	}
	return nil
}

// HasReport reports whether the pair already has a report.
func (s *Store) HasReport(ctx context.Context, materialKey, reporterID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reports WHERE material_key=$1 AND reporter_id=$2)
	`, materialKey, reporterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe report: %w", err)
	}
	return exists, nil
}

// LastReportAt returns when the reporter last filed a report.
func (s *Store) LastReportAt(ctx context.Context, reporterID string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT created_at FROM reports WHERE reporter_id=$1 ORDER BY created_at DESC LIMIT 1
	`, reporterID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last report: %w", err)
	}
	return at, true, nil
}

// GetReport returns a report by id.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

// ResolveReport is the linearization point of report review: one UPDATE
// guarded by status='pending'. A loser of a concurrent race gets
// apperr.ErrStale.
func (s *Store) ResolveReport(ctx context.Context, id string, status model.ReportStatus, reviewerID string, comment *string) (*model.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx, `
		UPDATE reports
		SET status=$2, reviewer_id=$3, moderator_comment=$4, updated_at=$5
		WHERE id=$1 AND status='pending'
		RETURNING `+reportColumns,
		id, status, reviewerID, comment, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missingOrStale(ctx, `SELECT 1 FROM reports WHERE id=$1`, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve report: %w", err)
	}
	return r, nil
}

// ListReportsByReporter returns the reporter's reports, newest first.
func (s *Store) ListReportsByReporter(ctx context.Context, reporterID string) ([]model.Report, error) {
	return s.queryReports(ctx, `SELECT `+reportColumns+` FROM reports WHERE reporter_id=$1 ORDER BY created_at DESC`, reporterID)
}

// ListReportsByStatus returns reports by status (nil for all), newest first.
func (s *Store) ListReportsByStatus(ctx context.Context, status *model.ReportStatus, excludeDeleted bool) ([]model.Report, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	return s.queryReports(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE ($1::text IS NULL OR status = $1) AND (NOT $2 OR material_id IS NOT NULL)
		ORDER BY created_at DESC
	`, filter, excludeDeleted)
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	defer rows.Close()
	out := make([]model.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
