// Package project implements C11: project lifecycle. Grounded on the
// teacher's projects_store_postgres.go Create/cascade-delete shape
// (projects table + ON DELETE CASCADE to project_files), generalized from
// file-storage metadata to this module's per-project graph/vector/cache
// namespaces. The relational project record itself (name, owner, quotas)
// is spec.md §4.11's "external collaborator" and out of scope here; this
// package owns only the storage-namespace side of create/delete.
package project

import (
	"context"
	"fmt"

	"ragcore/internal/storage"
)

// Manager is C11.
type Manager struct {
	Backend storage.Backend
}

func New(backend storage.Backend) *Manager {
	return &Manager{Backend: backend}
}

// Create allocates the per-project graph namespace (spec.md §4.11
// "allocate per-project graph namespace and optional vector namespace").
// The vector store needs no separate allocation call: every vector
// operation is already scoped by projectID, so a namespace comes into
// existence on first write.
func (m *Manager) Create(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project: create: empty project id")
	}
	if err := m.Backend.Graph().CreateProjectGraph(ctx, projectID); err != nil {
		return fmt.Errorf("project: create graph namespace: %w", err)
	}
	return nil
}

// Delete cascades vectors -> graph namespace -> document metadata ->
// cache entries, in that order, so a reader can never observe a document
// status or cache entry referencing an already-deleted graph or vector
// (spec.md §4.11). After Delete returns, any query against projectID
// must return zero sources without erroring; it is never re-created
// implicitly, so a query against an unknown project behaves identically
// to one against a project that was deleted moments ago.
func (m *Manager) Delete(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project: delete: empty project id")
	}
	if err := m.Backend.Vector().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("project: delete vectors: %w", err)
	}
	if err := m.Backend.Graph().DeleteProjectGraph(ctx, projectID); err != nil {
		return fmt.Errorf("project: delete graph namespace: %w", err)
	}
	if err := m.Backend.DocStatus().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("project: delete document metadata: %w", err)
	}
	if err := m.Backend.ExtractionCache().DeleteByProject(ctx, projectID); err != nil {
		return fmt.Errorf("project: delete cache entries: %w", err)
	}
	return nil
}
