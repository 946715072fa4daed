package embedded

import (
	"context"
	"database/sql"
	"time"

	"ragcore/internal/storage"
)

// DocStatusStore is the embedded DocStatusStorage implementation.
type DocStatusStore struct {
	db *DB
}

func NewDocStatusStore(db *DB) *DocStatusStore { return &DocStatusStore{db: db} }

func (d *DocStatusStore) SetStatus(ctx context.Context, s storage.DocStatus) error {
	var started, completed sql.NullString
	if !s.StartedAt.IsZero() {
		started = sql.NullString{String: s.StartedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	if !s.CompletedAt.IsZero() {
		completed = sql.NullString{String: s.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := d.db.write.ExecContext(ctx, `
INSERT INTO doc_status(document_id, project_id, status, chunks, entities, relations, error_message, started_at, completed_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(document_id) DO UPDATE SET project_id=excluded.project_id, status=excluded.status, chunks=excluded.chunks,
  entities=excluded.entities, relations=excluded.relations, error_message=excluded.error_message,
  started_at=excluded.started_at, completed_at=excluded.completed_at`,
		s.DocumentID, s.ProjectID, string(s.Status), s.Counts.Chunks, s.Counts.Entities, s.Counts.Relations,
		nullIfEmpty(s.ErrorMsg), started, completed)
	return err
}

// DeleteByProject removes every doc status row for projectID (C11 cascade).
func (d *DocStatusStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := d.db.write.ExecContext(ctx, `DELETE FROM doc_status WHERE project_id=?`, projectID)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (d *DocStatusStore) GetStatus(ctx context.Context, documentID string) (storage.DocStatus, bool, error) {
	var s storage.DocStatus
	var status string
	var errMsg, started, completed sql.NullString
	s.DocumentID = documentID
	err := d.db.read.QueryRowContext(ctx, `SELECT project_id, status, chunks, entities, relations, error_message, started_at, completed_at FROM doc_status WHERE document_id=?`,
		documentID).Scan(&s.ProjectID, &status, &s.Counts.Chunks, &s.Counts.Entities, &s.Counts.Relations, &errMsg, &started, &completed)
	if err == sql.ErrNoRows {
		return storage.DocStatus{}, false, nil
	}
	if err != nil {
		return storage.DocStatus{}, false, err
	}
	s.Status = storage.DocProcessingStatus(status)
	s.ErrorMsg = errMsg.String
	if started.Valid {
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, started.String)
	}
	if completed.Valid {
		s.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed.String)
	}
	return s, true, nil
}
