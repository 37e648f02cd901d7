package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tabs returns all tabs ordered by position.
func (s *Store) Tabs(ctx context.Context) ([]Tab, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, position, color, system FROM tabs ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer rows.Close()

	var tabs []Tab
	for rows.Next() {
		var (
			tab    Tab
			color  sql.NullString
			system int
		)
		if err := rows.Scan(&tab.ID, &tab.Name, &tab.Position, &color, &system); err != nil {
			return nil, err
		}
		tab.Color = color.String
		tab.System = system != 0
		tabs = append(tabs, tab)
	}
	return tabs, rows.Err()
}

// GetTab fetches one tab by id.
func (s *Store) GetTab(ctx context.Context, id int64) (*Tab, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, position, color, system FROM tabs WHERE id = ?`, id)
	var (
		tab    Tab
		color  sql.NullString
		system int
	)
	if err := row.Scan(&tab.ID, &tab.Name, &tab.Position, &color, &system); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, fmt.Errorf("get tab: %w", err)
	}
	tab.Color = color.String
	tab.System = system != 0
	return &tab, nil
}

// CreateTab adds a user tab at the end of the display order.
func (s *Store) CreateTab(ctx context.Context, name, color string) (*Tab, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tab name must not be empty")
	}

	var maxPos sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM tabs`).Scan(&maxPos); err != nil {
		return nil, fmt.Errorf("tab position: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tabs (name, position, color, system) VALUES (?, ?, ?, 0)`,
		name, maxPos.Int64+1, nullableString(color))
	if err != nil {
		return nil, fmt.Errorf("insert tab: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTab(ctx, id)
}

// RenameTab renames a user tab. System tabs reject renames.
func (s *Store) RenameTab(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("tab name must not be empty")
	}
	tab, err := s.GetTab(ctx, id)
	if err != nil {
		return err
	}
	if tab.System {
		return ErrSystemTab
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tabs SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("rename tab: %w", err)
	}
	return nil
}

// DeleteTab removes a user tab, reassigning member galleries to reassignTo in
// the same transaction. System tabs always reject deletion.
func (s *Store) DeleteTab(ctx context.Context, id, reassignTo int64) error {
	if id == reassignTo {
		return errors.New("cannot reassign galleries to the tab being deleted")
	}
	tab, err := s.GetTab(ctx, id)
	if err != nil {
		return err
	}
	if tab.System {
		return ErrSystemTab
	}
	if _, err := s.GetTab(ctx, reassignTo); err != nil {
		return fmt.Errorf("reassignment target: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tab delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE galleries SET tab_id = ? WHERE tab_id = ?`, reassignTo, id); err != nil {
		return fmt.Errorf("reassign galleries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tabs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tab: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tab delete: %w", err)
	}
	return nil
}
