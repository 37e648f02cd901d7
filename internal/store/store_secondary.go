package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSecondaryUpload registers a (gallery, destination) mirror record in
// the pending state. Re-creating an existing pair resets it to pending.
func (s *Store) CreateSecondaryUpload(ctx context.Context, galleryID int64, destination string) (*SecondaryUpload, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secondary_uploads (gallery_id, destination, status, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (gallery_id, destination) DO UPDATE SET
            status = excluded.status, uploaded_bytes = 0, result_url = NULL,
            error = NULL, updated_at = excluded.updated_at`,
		galleryID, destination, SecondaryPending, now)
	if err != nil {
		return nil, fmt.Errorf("create secondary upload: %w", err)
	}
	return s.GetSecondaryUpload(ctx, galleryID, destination)
}

// GetSecondaryUpload fetches one mirror record, or nil when absent.
func (s *Store) GetSecondaryUpload(ctx context.Context, galleryID int64, destination string) (*SecondaryUpload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+secondaryColumns+` FROM secondary_uploads WHERE gallery_id = ? AND destination = ?`,
		galleryID, destination)
	upload, err := scanSecondary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secondary upload: %w", err)
	}
	return upload, nil
}

// UpdateSecondaryUpload persists status, counters, and result metadata.
func (s *Store) UpdateSecondaryUpload(ctx context.Context, upload *SecondaryUpload) error {
	if upload == nil {
		return errors.New("secondary upload is nil")
	}
	upload.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE secondary_uploads SET
            status = ?, uploaded_bytes = ?, total_bytes = ?, result_url = ?, error = ?, updated_at = ?
         WHERE gallery_id = ? AND destination = ?`,
		upload.Status,
		upload.UploadedBytes,
		upload.TotalBytes,
		nullableString(upload.ResultURL),
		nullableString(upload.Error),
		upload.UpdatedAt.Format(time.RFC3339Nano),
		upload.GalleryID,
		upload.Destination,
	)
	if err != nil {
		return fmt.Errorf("update secondary upload: %w", err)
	}
	return nil
}

// SecondaryUploadsByGallery returns a gallery's mirror records.
func (s *Store) SecondaryUploadsByGallery(ctx context.Context, galleryID int64) ([]*SecondaryUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+secondaryColumns+` FROM secondary_uploads WHERE gallery_id = ? ORDER BY destination`,
		galleryID)
	if err != nil {
		return nil, fmt.Errorf("query secondary uploads: %w", err)
	}
	defer rows.Close()
	return collectSecondary(rows)
}

// SecondaryUploadsByStatus returns mirror records matching a status.
func (s *Store) SecondaryUploadsByStatus(ctx context.Context, status SecondaryStatus) ([]*SecondaryUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+secondaryColumns+` FROM secondary_uploads WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("query secondary uploads: %w", err)
	}
	defer rows.Close()
	return collectSecondary(rows)
}

// DeleteSecondaryUploads removes all mirror records for a gallery.
func (s *Store) DeleteSecondaryUploads(ctx context.Context, galleryID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secondary_uploads WHERE gallery_id = ?`, galleryID)
	if err != nil {
		return 0, fmt.Errorf("delete secondary uploads: %w", err)
	}
	return res.RowsAffected()
}

const secondaryColumns = `id, gallery_id, destination, status, uploaded_bytes, total_bytes, result_url, error, updated_at`

func collectSecondary(rows *sql.Rows) ([]*SecondaryUpload, error) {
	var uploads []*SecondaryUpload
	for rows.Next() {
		upload, err := scanSecondary(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

func scanSecondary(scanner interface{ Scan(dest ...any) error }) (*SecondaryUpload, error) {
	var (
		upload     SecondaryUpload
		statusStr  string
		resultURL  sql.NullString
		errMessage sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&upload.ID, &upload.GalleryID, &upload.Destination, &statusStr,
		&upload.UploadedBytes, &upload.TotalBytes, &resultURL, &errMessage, &updatedRaw,
	); err != nil {
		return nil, err
	}
	upload.Status = SecondaryStatus(statusStr)
	upload.ResultURL = resultURL.String
	upload.Error = errMessage.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		upload.UpdatedAt = updated
	}
	return &upload, nil
}
