package store

import (
	"context"
	"fmt"
	"time"
)

// AddPendingRename records that a remote gallery was created anonymously and
// still needs its display name corrected. Idempotent per remote id.
func (s *Store) AddPendingRename(ctx context.Context, remoteID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_renames (remote_id, name, created_at) VALUES (?, ?, ?)
         ON CONFLICT (remote_id) DO UPDATE SET name = excluded.name`,
		remoteID, name, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add pending rename: %w", err)
	}
	return nil
}

// PendingRenames returns all entries awaiting the rename collaborator,
// oldest first.
func (s *Store) PendingRenames(ctx context.Context) ([]PendingRename, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT remote_id, name, created_at FROM pending_renames ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query pending renames: %w", err)
	}
	defer rows.Close()

	var renames []PendingRename
	for rows.Next() {
		var (
			rename     PendingRename
			createdRaw string
		)
		if err := rows.Scan(&rename.RemoteID, &rename.Name, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			rename.CreatedAt = created
		}
		renames = append(renames, rename)
	}
	return renames, rows.Err()
}

// RemovePendingRename deletes one entry once the collaborator has applied it.
func (s *Store) RemovePendingRename(ctx context.Context, remoteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_renames WHERE remote_id = ?`, remoteID); err != nil {
		return fmt.Errorf("remove pending rename: %w", err)
	}
	return nil
}
