package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twwat/imxup-sub002/internal/logging"
)

const galleryColumns = `id, path, name, status, added_at, finished_at,
    total_bytes, uploaded_bytes, total_images, uploaded_images,
    width_agg, height_agg, insertion_order, tab_id, template,
    custom_fields_json, remote_id, remote_url, uploaded_json,
    results_json, failures_json`

// UpsertGalleries inserts or updates a batch of galleries keyed by path in a
// single transaction. A malformed element is skipped with a logged warning;
// the rest of the batch still commits. An id collision against a different
// path is rejected via ErrIDConflict, never silently renumbered.
func (s *Store) UpsertGalleries(ctx context.Context, galleries []*Gallery) error {
	if len(galleries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var itemErrs []error
	for _, gallery := range galleries {
		if gallery == nil || gallery.Path == "" {
			s.logger.Warn("skipping malformed gallery in batch", logging.String(logging.FieldGallery, pathOf(gallery)))
			continue
		}
		if err := upsertOne(ctx, tx, gallery); err != nil {
			s.logger.Warn("skipping gallery in batch",
				logging.String(logging.FieldGallery, gallery.Path),
				logging.Error(err),
			)
			itemErrs = append(itemErrs, fmt.Errorf("%s: %w", gallery.Path, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return errors.Join(itemErrs...)
}

// Upsert inserts or updates a single gallery keyed by path.
func (s *Store) Upsert(ctx context.Context, gallery *Gallery) error {
	if gallery == nil || gallery.Path == "" {
		return errors.New("gallery path must be set")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := upsertOne(ctx, tx, gallery); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func upsertOne(ctx context.Context, tx *sql.Tx, gallery *Gallery) error {
	var existingID int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM galleries WHERE path = ?`, gallery.Path)
	switch err := row.Scan(&existingID); {
	case err == nil:
		if gallery.ID != 0 && gallery.ID != existingID {
			return fmt.Errorf("%w: path %q already has id %d", ErrIDConflict, gallery.Path, existingID)
		}
		gallery.ID = existingID
		return updateGallery(ctx, tx, gallery)
	case errors.Is(err, sql.ErrNoRows):
		if gallery.ID != 0 {
			var otherPath string
			idRow := tx.QueryRowContext(ctx, `SELECT path FROM galleries WHERE id = ?`, gallery.ID)
			switch idErr := idRow.Scan(&otherPath); {
			case idErr == nil:
				return fmt.Errorf("%w: id %d belongs to %q", ErrIDConflict, gallery.ID, otherPath)
			case !errors.Is(idErr, sql.ErrNoRows):
				return fmt.Errorf("check id collision: %w", idErr)
			}
		}
		return insertGallery(ctx, tx, gallery)
	default:
		return fmt.Errorf("lookup gallery by path: %w", err)
	}
}

func insertGallery(ctx context.Context, tx *sql.Tx, gallery *Gallery) error {
	fields, err := encodeGalleryFields(gallery)
	if err != nil {
		return err
	}
	if gallery.AddedAt.IsZero() {
		gallery.AddedAt = time.Now().UTC()
	}

	var idValue any
	if gallery.ID != 0 {
		idValue = gallery.ID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO galleries (
            id, path, name, status, added_at, finished_at,
            total_bytes, uploaded_bytes, total_images, uploaded_images,
            width_agg, height_agg, insertion_order, tab_id, template,
            custom_fields_json, remote_id, remote_url, uploaded_json,
            results_json, failures_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idValue,
		gallery.Path,
		gallery.Name,
		gallery.Status,
		gallery.AddedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(gallery.FinishedAt),
		gallery.TotalBytes,
		gallery.UploadedBytes,
		gallery.TotalImages,
		gallery.UploadedImages,
		gallery.WidthAgg,
		gallery.HeightAgg,
		gallery.Order,
		tabOrDefault(gallery.TabID),
		nullableString(gallery.Template),
		fields.customFields,
		nullableString(gallery.RemoteID),
		nullableString(gallery.RemoteURL),
		fields.uploaded,
		fields.results,
		fields.failures,
	)
	if err != nil {
		return fmt.Errorf("insert gallery: %w", err)
	}
	if gallery.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		gallery.ID = id
	}
	return nil
}

func updateGallery(ctx context.Context, tx *sql.Tx, gallery *Gallery) error {
	fields, err := encodeGalleryFields(gallery)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE galleries SET
            name = ?, status = ?, finished_at = ?,
            total_bytes = ?, uploaded_bytes = ?, total_images = ?, uploaded_images = ?,
            width_agg = ?, height_agg = ?, insertion_order = ?, tab_id = ?, template = ?,
            custom_fields_json = ?, remote_id = ?, remote_url = ?, uploaded_json = ?,
            results_json = ?, failures_json = ?
         WHERE path = ?`,
		gallery.Name,
		gallery.Status,
		nullableTime(gallery.FinishedAt),
		gallery.TotalBytes,
		gallery.UploadedBytes,
		gallery.TotalImages,
		gallery.UploadedImages,
		gallery.WidthAgg,
		gallery.HeightAgg,
		gallery.Order,
		tabOrDefault(gallery.TabID),
		nullableString(gallery.Template),
		fields.customFields,
		nullableString(gallery.RemoteID),
		nullableString(gallery.RemoteURL),
		fields.uploaded,
		fields.results,
		fields.failures,
		gallery.Path,
	)
	if err != nil {
		return fmt.Errorf("update gallery: %w", err)
	}
	return nil
}

type encodedFields struct {
	customFields any
	uploaded     any
	results      any
	failures     any
}

func encodeGalleryFields(gallery *Gallery) (encodedFields, error) {
	var fields encodedFields
	var err error
	if fields.customFields, err = marshalJSON(gallery.CustomFields); err != nil {
		return fields, fmt.Errorf("encode custom fields: %w", err)
	}
	if fields.uploaded, err = marshalJSON(gallery.Uploaded); err != nil {
		return fields, fmt.Errorf("encode uploaded set: %w", err)
	}
	if fields.results, err = marshalJSON(gallery.Results); err != nil {
		return fields, fmt.Errorf("encode results: %w", err)
	}
	if fields.failures, err = marshalJSON(gallery.Failures); err != nil {
		return fields, fmt.Errorf("encode failures: %w", err)
	}
	return fields, nil
}

func tabOrDefault(tabID int64) int64 {
	if tabID <= 0 {
		return 1
	}
	return tabID
}

func pathOf(gallery *Gallery) string {
	if gallery == nil {
		return "<nil>"
	}
	return gallery.Path
}

// LoadAll returns every gallery ordered by insertion order. A malformed row
// is skipped with a logged warning rather than failing the whole load.
func (s *Store) LoadAll(ctx context.Context) ([]*Gallery, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+galleryColumns+` FROM galleries ORDER BY insertion_order, id`)
	if err != nil {
		return nil, fmt.Errorf("load galleries: %w", err)
	}
	defer rows.Close()

	var galleries []*Gallery
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			s.logger.Warn("skipping malformed gallery row", logging.Error(err))
			continue
		}
		galleries = append(galleries, gallery)
	}
	return galleries, rows.Err()
}

// GetByPath fetches one gallery, or nil when absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*Gallery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE path = ?`, path)
	gallery, err := scanGallery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery: %w", err)
	}
	return gallery, nil
}

// DeleteByStatus removes all galleries in any of the given statuses.
func (s *Store) DeleteByStatus(ctx context.Context, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM galleries WHERE status IN (`+makePlaceholders(len(statuses))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete by status: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByPaths removes the named galleries.
func (s *Store) DeleteByPaths(ctx context.Context, paths ...string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	args := make([]any, len(paths))
	for i, path := range paths {
		args[i] = path
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM galleries WHERE path IN (`+makePlaceholders(len(paths))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete by paths: %w", err)
	}
	return res.RowsAffected()
}

// Reorder atomically renumbers insertion order to match the given path
// sequence, assigning 1..len(paths).
func (s *Store) Reorder(ctx context.Context, paths []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `UPDATE galleries SET insertion_order = ? WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("prepare reorder: %w", err)
	}
	defer stmt.Close()

	for i, path := range paths {
		if _, err := stmt.ExecContext(ctx, i+1, path); err != nil {
			return fmt.Errorf("reorder %q: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// SetCustomField patches a single custom field on one gallery.
func (s *Store) SetCustomField(ctx context.Context, path, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin custom field tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var raw sql.NullString
	row := tx.QueryRowContext(ctx, `SELECT custom_fields_json FROM galleries WHERE path = ?`, path)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("gallery %q not found", path)
		}
		return fmt.Errorf("read custom fields: %w", err)
	}

	fields := make(map[string]string)
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &fields); err != nil {
			return fmt.Errorf("decode custom fields: %w", err)
		}
	}
	if value == "" {
		delete(fields, key)
	} else {
		fields[key] = value
	}

	encoded, err := marshalJSON(fields)
	if err != nil {
		return fmt.Errorf("encode custom fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE galleries SET custom_fields_json = ? WHERE path = ?`, encoded, path); err != nil {
		return fmt.Errorf("write custom fields: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit custom field: %w", err)
	}
	return nil
}

// ResetTransient downgrades queued/uploading rows to ready. Resumable
// uploaded-filename sets are untouched, so a later run re-uploads nothing
// already recorded.
func (s *Store) ResetTransient(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE galleries SET status = ? WHERE status IN (?, ?)`,
		StatusReady, StatusQueued, StatusUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset transient statuses: %w", err)
	}
	return res.RowsAffected()
}

func scanGallery(scanner interface{ Scan(dest ...any) error }) (*Gallery, error) {
	var (
		id             int64
		path           string
		name           string
		statusStr      string
		addedRaw       sql.NullString
		finishedRaw    sql.NullString
		totalBytes     int64
		uploadedBytes  int64
		totalImages    int
		uploadedImages int
		widthAgg       int
		heightAgg      int
		order          int
		tabID          int64
		template       sql.NullString
		customRaw      sql.NullString
		remoteID       sql.NullString
		remoteURL      sql.NullString
		uploadedRaw    sql.NullString
		resultsRaw     sql.NullString
		failuresRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id, &path, &name, &statusStr, &addedRaw, &finishedRaw,
		&totalBytes, &uploadedBytes, &totalImages, &uploadedImages,
		&widthAgg, &heightAgg, &order, &tabID, &template,
		&customRaw, &remoteID, &remoteURL, &uploadedRaw,
		&resultsRaw, &failuresRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("gallery %q has unknown status %q", path, statusStr)
	}

	gallery := &Gallery{
		ID:             id,
		Path:           path,
		Name:           name,
		Status:         status,
		TotalBytes:     totalBytes,
		UploadedBytes:  uploadedBytes,
		TotalImages:    totalImages,
		UploadedImages: uploadedImages,
		WidthAgg:       widthAgg,
		HeightAgg:      heightAgg,
		Order:          order,
		TabID:          tabID,
		Template:       template.String,
		RemoteID:       remoteID.String,
		RemoteURL:      remoteURL.String,
	}

	if added, err := parseTimeString(addedRaw.String); err == nil {
		gallery.AddedAt = added
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			gallery.FinishedAt = &finished
		}
	}
	if customRaw.Valid && customRaw.String != "" {
		if err := json.Unmarshal([]byte(customRaw.String), &gallery.CustomFields); err != nil {
			return nil, fmt.Errorf("gallery %q custom fields: %w", path, err)
		}
	}
	if uploadedRaw.Valid && uploadedRaw.String != "" {
		var names []string
		if err := json.Unmarshal([]byte(uploadedRaw.String), &names); err != nil {
			return nil, fmt.Errorf("gallery %q uploaded set: %w", path, err)
		}
		gallery.Uploaded = make(map[string]struct{}, len(names))
		for _, n := range names {
			gallery.Uploaded[n] = struct{}{}
		}
	}
	if resultsRaw.Valid && resultsRaw.String != "" {
		if err := json.Unmarshal([]byte(resultsRaw.String), &gallery.Results); err != nil {
			return nil, fmt.Errorf("gallery %q results: %w", path, err)
		}
	}
	if failuresRaw.Valid && failuresRaw.String != "" {
		if err := json.Unmarshal([]byte(failuresRaw.String), &gallery.Failures); err != nil {
			return nil, fmt.Errorf("gallery %q failures: %w", path, err)
		}
	}
	return gallery, nil
}
