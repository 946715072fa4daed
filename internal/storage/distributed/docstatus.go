package distributed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"ragcore/internal/storage"
)

// DocStatusStore is the Postgres DocStatusStorage implementation.
type DocStatusStore struct {
	db *DB
}

func NewDocStatusStore(db *DB) *DocStatusStore { return &DocStatusStore{db: db} }

func (d *DocStatusStore) SetStatus(ctx context.Context, s storage.DocStatus) error {
	var started, completed *time.Time
	if !s.StartedAt.IsZero() {
		started = &s.StartedAt
	}
	if !s.CompletedAt.IsZero() {
		completed = &s.CompletedAt
	}
	_, err := d.db.Pool.Exec(ctx, `
INSERT INTO doc_status(document_id, project_id, status, chunks, entities, relations, error_message, started_at, completed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT(document_id) DO UPDATE SET project_id=excluded.project_id, status=excluded.status, chunks=excluded.chunks,
  entities=excluded.entities, relations=excluded.relations, error_message=excluded.error_message,
  started_at=excluded.started_at, completed_at=excluded.completed_at`,
		s.DocumentID, s.ProjectID, string(s.Status), s.Counts.Chunks, s.Counts.Entities, s.Counts.Relations,
		nullIfEmpty(s.ErrorMsg), started, completed)
	return err
}

// DeleteByProject removes every doc status row for projectID (C11 cascade).
func (d *DocStatusStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := d.db.Pool.Exec(ctx, `DELETE FROM doc_status WHERE project_id=$1`, projectID)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (d *DocStatusStore) GetStatus(ctx context.Context, documentID string) (storage.DocStatus, bool, error) {
	var s storage.DocStatus
	var status string
	var errMsg *string
	var started, completed *time.Time
	s.DocumentID = documentID
	err := d.db.Pool.QueryRow(ctx, `SELECT project_id, status, chunks, entities, relations, error_message, started_at, completed_at FROM doc_status WHERE document_id=$1`,
		documentID).Scan(&s.ProjectID, &status, &s.Counts.Chunks, &s.Counts.Entities, &s.Counts.Relations, &errMsg, &started, &completed)
	if err == pgx.ErrNoRows {
		return storage.DocStatus{}, false, nil
	}
	if err != nil {
		return storage.DocStatus{}, false, err
	}
	s.Status = storage.DocProcessingStatus(status)
	if errMsg != nil {
		s.ErrorMsg = *errMsg
	}
	if started != nil {
		s.StartedAt = *started
	}
	if completed != nil {
		s.CompletedAt = *completed
	}
	return s, true, nil
}
