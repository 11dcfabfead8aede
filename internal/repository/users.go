package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

const userColumns = `id, name, role, program, branch, semester, profile_completed, is_banned, ban_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Program, &u.Branch, &u.Semester, &u.ProfileCompleted, &u.IsBanned, &u.BanReason, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts or replaces the profile fields of a user. The ban
// columns are left alone on conflict; only BanUser/UnbanUser write them.
func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, role, program, branch, semester, profile_completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			program = excluded.program,
			branch = excluded.branch,
			semester = excluded.semester,
			profile_completed = excluded.profile_completed
	`, u.ID, u.Name, u.Role, u.Program, u.Branch, u.Semester, u.ProfileCompleted, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// ListUsers returns every user ordered by creation.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// BanUser sets the ban flag if the target exists, is not banned and is not a
// moderator. A lost precondition is reported as apperr.ErrStale.
func (s *Store) BanUser(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_banned = TRUE, ban_reason = $2
		WHERE id = $1 AND NOT is_banned AND role <> 'moderator'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, `SELECT 1 FROM users WHERE id=$1`, id)
	}
	return nil
}

// UnbanUser clears the ban flag if it is set.
func (s *Store) UnbanUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_banned = FALSE, ban_reason = NULL
		WHERE id = $1 AND is_banned
	`, id)
	if err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, `SELECT 1 FROM users WHERE id=$1`, id)
	}
	return nil
}

// missingOrStale classifies a conditional write that matched nothing.
func (s *Store) missingOrStale(ctx context.Context, probe string, id string) error {
	var one int
	if err := s.pool.QueryRow(ctx, probe, id).Scan(&one); err != nil {
		return translate(err)
	}
	return apperr.ErrStale
}
