package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

// CreateMaterial inserts a material record.
func (s *Store) CreateMaterial(ctx context.Context, m *model.Material) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO materials (id, title, description, file_ref, file_kind, program, branch, semester, uploader_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, m.ID, m.Title, m.Description, m.FileRef, m.FileKind, m.Program, m.Branch, m.Semester, m.UploaderID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert material: %w", translate(err))
	}
	return nil
}

// GetMaterial returns a material with its upvoters.
func (s *Store) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	var m model.Material
	row := s.pool.QueryRow(ctx, `
		SELECT m.id, m.title, m.description, m.file_ref, m.file_kind, m.program, m.branch, m.semester, m.uploader_id, m.created_at,
			COALESCE(array_agg(u.user_id ORDER BY u.user_id) FILTER (WHERE u.user_id IS NOT NULL), '{}')
		FROM materials m
		LEFT JOIN material_upvotes u ON u.material_id = m.id
		WHERE m.id = $1
		GROUP BY m.id
	`, id)
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.FileRef, &m.FileKind, &m.Program, &m.Branch, &m.Semester, &m.UploaderID, &m.CreatedAt, &m.UpvoterIDs); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// DeleteMaterial removes the record. Upvotes cascade; reports keep their
// material_key and have material_id nulled by the foreign key.
func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM materials WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ToggleUpvote adds or removes the user's upvote and returns the new state
// and total.
func (s *Store) ToggleUpvote(ctx context.Context, materialID, userID string) (bool, int, error) {
	var (
		upvoted bool
		total   int
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM materials WHERE id=$1 FOR SHARE`, materialID).Scan(&one); err != nil {
			return translate(err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM material_upvotes WHERE material_id=$1 AND user_id=$2`, materialID, userID)
		if err != nil {
			return fmt.Errorf("remove upvote: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `
				INSERT INTO material_upvotes (material_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, materialID, userID); err != nil {
				return fmt.Errorf("add upvote: %w", translate(err))
			}
			upvoted = true
		}
		return tx.QueryRow(ctx, `SELECT count(*) FROM material_upvotes WHERE material_id=$1`, materialID).Scan(&total)
	})
	if err != nil {
		return false, 0, err
	}
	return upvoted, total, nil
}
