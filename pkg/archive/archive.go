// Package archive retains raw statement uploads so committed imports
// can be re-inspected or replayed later.
package archive

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// StatementFile contains metadata about an archived statement upload.
type StatementFile struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Archive stores and retrieves raw statement files per user.
type Archive interface {
	// Save stores a statement file and returns its metadata.
	Save(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*StatementFile, error)

	// Open returns a reader for an archived file.
	Open(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *StatementFile, error)

	// Remove deletes an archived file.
	Remove(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error

	// List returns all archived statements for a user.
	List(ctx context.Context, userID uuid.UUID) ([]*StatementFile, error)

	// Stat returns metadata for a file without opening it.
	Stat(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*StatementFile, error)
}
