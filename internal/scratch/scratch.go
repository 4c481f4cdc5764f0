// Package scratch manages the process-local scratch directory holding
// uploaded documents and generated artifacts. The directory is wiped
// wholesale on application start; within a run, each visitor owns one
// subdirectory.
package scratch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

// Store couples the on-disk scratch tree with its upload bookkeeping rows.
type Store struct {
	db        *sql.DB
	baseDir   string
	uploadTTL time.Duration
}

// NewStore builds a scratch store rooted at baseDir.
func NewStore(db *sql.DB, baseDir string, uploadTTL time.Duration) *Store {
	if uploadTTL <= 0 {
		uploadTTL = 24 * time.Hour
	}
	return &Store{db: db, baseDir: baseDir, uploadTTL: uploadTTL}
}

// Wipe removes every file under the scratch base directory and recreates
// it. Called once on application start; uploaded and generated files never
// survive a restart.
func (s *Store) Wipe() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("wipe scratch dir: %w", err)
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("recreate scratch dir: %w", err)
	}
	return nil
}

// VisitorDir returns the scratch subdirectory for one visitor.
func (s *Store) VisitorDir(visitorID int64) string {
	return filepath.Join(s.baseDir, strconv.FormatInt(visitorID, 10))
}

// SaveUpload writes an uploaded document into the visitor's scratch
// directory as "uploaded_<name>" and records it. Name collisions are
// resolved by probing " (n)" suffixes.
func (s *Store) SaveUpload(ctx context.Context, visitorID int64, fileName, mimeType string, src io.Reader, size int64) (*models.Upload, error) {
	dir := s.VisitorDir(visitorID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create visitor dir: %w", err)
	}

	finalName, destPath := uniquePath(dir, "uploaded_"+filepath.Base(fileName))
	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(out, src)
	closeErr := out.Close()
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if closeErr != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	}
	if size > 0 && written != size {
		os.Remove(destPath)
		return nil, fmt.Errorf("short upload write: got %d of %d bytes", written, size)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.uploadTTL)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (visitor_id, file_name, stored_path, mime_type, size, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		visitorID, finalName, destPath, mimeType, written, models.UploadStatusActive, now, expiresAt,
	)
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("record upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("upload id: %w", err)
	}

	return &models.Upload{
		ID:         id,
		VisitorID:  visitorID,
		FileName:   finalName,
		StoredPath: destPath,
		MimeType:   mimeType,
		Size:       written,
		Status:     models.UploadStatusActive,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}, nil
}

// Usage reports the total active upload bytes for a visitor.
func (s *Store) Usage(ctx context.Context, visitorID int64) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(size) FROM uploads WHERE visitor_id = ? AND status = ?`,
		visitorID, models.UploadStatusActive,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("upload usage: %w", err)
	}
	return total.Int64, nil
}

// ListUploads returns the visitor's active uploads, newest first.
func (s *Store) ListUploads(ctx context.Context, visitorID int64) ([]*models.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, visitor_id, file_name, stored_path, mime_type, size, status, created_at, expires_at
		 FROM uploads WHERE visitor_id = ? AND status = ? ORDER BY created_at DESC`,
		visitorID, models.UploadStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()
	return scanUploads(rows)
}

// GetUploadsByIDs resolves a set of upload ids, all of which must belong to
// the visitor and be active. Result preserves the requested order.
func (s *Store) GetUploadsByIDs(ctx context.Context, visitorID int64, ids []int64) ([]*models.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, visitorID, models.UploadStatusActive)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, visitor_id, file_name, stored_path, mime_type, size, status, created_at, expires_at
		 FROM uploads WHERE visitor_id = ? AND status = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get uploads: %w", err)
	}
	defer rows.Close()
	found, err := scanUploads(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Upload, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	ordered := make([]*models.Upload, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("file id %d not found", id)
		}
		ordered = append(ordered, u)
	}
	return ordered, nil
}

func scanUploads(rows *sql.Rows) ([]*models.Upload, error) {
	var uploads []*models.Upload
	for rows.Next() {
		u := new(models.Upload)
		if err := rows.Scan(&u.ID, &u.VisitorID, &u.FileName, &u.StoredPath, &u.MimeType,
			&u.Size, &u.Status, &u.CreatedAt, &u.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// ListArtifacts discovers generated documents by listing the visitor's
// scratch directory for .xlsx/.docx files, newest first. There is no
// registry read here on purpose: a file present on disk is an artifact.
func (s *Store) ListArtifacts(visitorID int64) ([]models.Artifact, error) {
	dir := s.VisitorDir(visitorID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list scratch dir: %w", err)
	}

	var artifacts []models.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		mime, ok := artifactMime(name)
		if !ok || strings.HasPrefix(name, "uploaded_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, models.Artifact{
			FileName:  name,
			Path:      filepath.Join(dir, name),
			MimeType:  mime,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// ArtifactPath resolves an artifact download request to a path inside the
// visitor's scratch directory, rejecting traversal attempts.
func (s *Store) ArtifactPath(visitorID int64, name string) (models.Artifact, error) {
	if name != filepath.Base(name) || name == "" || name == "." || name == ".." {
		return models.Artifact{}, errors.New("invalid artifact name")
	}
	mime, ok := artifactMime(name)
	if !ok {
		return models.Artifact{}, errors.New("unsupported artifact type")
	}
	path := filepath.Join(s.VisitorDir(visitorID), name)
	info, err := os.Stat(path)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("artifact not found: %s", name)
	}
	return models.Artifact{
		FileName:  name,
		Path:      path,
		MimeType:  mime,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// RecordArtifact stores a bookkeeping row for a generated file. Listing
// never reads this table, so a failure here leaves the artifact itself
// fully usable.
func (s *Store) RecordArtifact(ctx context.Context, visitorID int64, path, mimeType string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (visitor_id, file_name, stored_path, mime_type, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		visitorID, filepath.Base(path), path, mimeType, info.Size(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// RemoveVisitor deletes the visitor's scratch subtree.
func (s *Store) RemoveVisitor(visitorID int64) error {
	if err := os.RemoveAll(s.VisitorDir(visitorID)); err != nil {
		return fmt.Errorf("remove visitor dir: %w", err)
	}
	return nil
}

func artifactMime(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return models.MimeXLSX, true
	case ".docx":
		return models.MimeDOCX, true
	default:
		return "", false
	}
}

func uniquePath(dir, fileName string) (string, string) {
	destPath := filepath.Join(dir, fileName)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return fileName, destPath
	}
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return candidate, path
		}
	}
	fallback := fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
	return fallback, filepath.Join(dir, fallback)
}
