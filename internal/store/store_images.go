package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceImages swaps a gallery's per-image records for the given set in one
// transaction. Called at gallery finalization with the merged result list.
func (s *Store) ReplaceImages(ctx context.Context, galleryID int64, records []ImageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin images tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gallery_images WHERE gallery_id = ?`, galleryID); err != nil {
		return fmt.Errorf("clear images: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gallery_images (
            gallery_id, filename, size_bytes, width, height, uploaded_at, url, thumb_url
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx,
			galleryID,
			record.Filename,
			record.Size,
			record.Width,
			record.Height,
			nullableTime(record.UploadedAt),
			nullableString(record.URL),
			nullableString(record.ThumbURL),
		); err != nil {
			return fmt.Errorf("insert image %q: %w", record.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit images: %w", err)
	}
	return nil
}

// Images returns a gallery's per-image records in filename order.
func (s *Store) Images(ctx context.Context, galleryID int64) ([]ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gallery_id, filename, size_bytes, width, height, uploaded_at, url, thumb_url
         FROM gallery_images WHERE gallery_id = ? ORDER BY filename`, galleryID)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var records []ImageRecord
	for rows.Next() {
		var (
			record      ImageRecord
			uploadedRaw sql.NullString
			url         sql.NullString
			thumbURL    sql.NullString
		)
		if err := rows.Scan(
			&record.GalleryID, &record.Filename, &record.Size,
			&record.Width, &record.Height, &uploadedRaw, &url, &thumbURL,
		); err != nil {
			return nil, err
		}
		if uploadedRaw.Valid {
			if uploaded, err := parseTimeString(uploadedRaw.String); err == nil {
				record.UploadedAt = &uploaded
			}
		}
		record.URL = url.String
		record.ThumbURL = thumbURL.String
		records = append(records, record)
	}
	return records, rows.Err()
}
