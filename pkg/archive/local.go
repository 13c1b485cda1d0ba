package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalArchive implements Archive on the local filesystem. Files live
// under basePath/<userID>/ with JSON metadata sidecars in a .meta
// subdirectory.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a filesystem archive rooted at basePath.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &LocalArchive{basePath: basePath}, nil
}

// Save stores a statement file and returns its metadata.
func (a *LocalArchive) Save(ctx context.Context, userID uuid.UUID, filename string, contentType string, r io.Reader) (*StatementFile, error) {
	fileID := uuid.New()

	userDir := filepath.Join(a.basePath, userID.String())
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	// UUID prefix keeps re-uploads of the same statement distinct.
	safeFilename := sanitizeFilename(filename)
	storedFilename := fmt.Sprintf("%s_%s", fileID.String()[:8], safeFilename)
	filePath := filepath.Join(userDir, storedFilename)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &StatementFile{
		ID:          fileID,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		Path:        storedFilename,
		CreatedAt:   time.Now(),
	}

	if err := a.saveMetadata(userID, fileID, info); err != nil {
		os.Remove(filePath)
		return nil, err
	}

	return info, nil
}

// Open returns a reader for an archived file.
func (a *LocalArchive) Open(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *StatementFile, error) {
	info, err := a.Stat(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	filePath := filepath.Join(a.basePath, userID.String(), info.Path)
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, info, nil
}

// Remove deletes an archived file and its metadata.
func (a *LocalArchive) Remove(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error {
	info, err := a.Stat(ctx, userID, fileID)
	if err != nil {
		return err
	}

	filePath := filepath.Join(a.basePath, userID.String(), info.Path)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	metaPath := filepath.Join(a.basePath, userID.String(), ".meta", fileID.String()+".json")
	os.Remove(metaPath)

	return nil
}

// List returns all archived statements for a user.
func (a *LocalArchive) List(ctx context.Context, userID uuid.UUID) ([]*StatementFile, error) {
	metaDir := filepath.Join(a.basePath, userID.String(), ".meta")
	if _, err := os.Stat(metaDir); os.IsNotExist(err) {
		return []*StatementFile{}, nil
	}

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*StatementFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		info, err := a.Stat(ctx, userID, id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	return files, nil
}

// Stat returns metadata for a file without opening it.
func (a *LocalArchive) Stat(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*StatementFile, error) {
	metaPath := filepath.Join(a.basePath, userID.String(), ".meta", fileID.String()+".json")

	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", fileID)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info StatementFile
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &info, nil
}

func (a *LocalArchive) saveMetadata(userID, fileID uuid.UUID, info *StatementFile) error {
	metaDir := filepath.Join(a.basePath, userID.String(), ".meta")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	metaPath := filepath.Join(metaDir, fileID.String()+".json")
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// sanitizeFilename removes path separators and shell-unsafe characters
// from uploaded filenames.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
