package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/michaelbrown/runbox/internal/storage"

	_ "modernc.org/sqlite"
)

// FileStore implements storage.Store backed by a SQLite database, with
// optional disk mirroring so shell sessions see saved files.
type FileStore struct {
	db *sql.DB

	// mirrorRoot, when set, receives a copy of every tree under
	// <mirrorRoot>/<userID>/. Mirror failures are logged, not returned;
	// the database is the source of truth.
	mirrorRoot string
}

// Open creates or opens a SQLite database at dbPath and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing). Pass an
// empty mirrorRoot to disable disk mirroring.
func Open(dbPath, mirrorRoot string) (*FileStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &FileStore{db: db, mirrorRoot: mirrorRoot}, nil
}

func (s *FileStore) List(ctx context.Context, userID string) ([]storage.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, type, length(content), created_at, updated_at
		FROM nodes WHERE user_id = ? ORDER BY path`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var nodes []storage.Node
	for rows.Next() {
		n := storage.Node{UserID: userID}
		var createdAt, updatedAt string
		if err := rows.Scan(&n.Path, &n.Type, &n.Size, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *FileStore) Read(ctx context.Context, userID, p string) (string, error) {
	p, err := storage.NormalizePath(p)
	if err != nil {
		return "", err
	}

	var content string
	var typ string
	err = s.db.QueryRowContext(ctx, `
		SELECT content, type FROM nodes WHERE user_id = ? AND path = ?`,
		userID, p).Scan(&content, &typ)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%s: %w", p, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	if typ != string(storage.NodeFile) {
		return "", fmt.Errorf("%s is a folder", p)
	}
	return content, nil
}

func (s *FileStore) Save(ctx context.Context, userID, p, content string) error {
	p, err := storage.NormalizePath(p)
	if err != nil {
		return err
	}

	if err := s.ensureParents(ctx, userID, p); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (user_id, path, type, content, created_at, updated_at)
		VALUES (?, ?, 'file', ?, ?, ?)
		ON CONFLICT(user_id, path) DO UPDATE SET
			content = excluded.content, updated_at = excluded.updated_at`,
		userID, p, content, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", p, err)
	}

	s.mirrorWrite(userID, p, content)
	return nil
}

func (s *FileStore) Mkdir(ctx context.Context, userID, p string) error {
	p, err := storage.NormalizePath(p)
	if err != nil {
		return err
	}
	if err := s.ensureParents(ctx, userID, p); err != nil {
		return err
	}
	if err := s.insertFolder(ctx, userID, p); err != nil {
		return err
	}
	s.mirrorMkdir(userID, p)
	return nil
}

func (s *FileStore) Delete(ctx context.Context, userID, p string) error {
	p, err := storage.NormalizePath(p)
	if err != nil {
		return err
	}

	// Deleting a folder takes its subtree with it.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM nodes WHERE user_id = ? AND (path = ? OR path LIKE ? || '/%')`,
		userID, p, p,
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", p, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", p, storage.ErrNotFound)
	}

	s.mirrorRemove(userID, p)
	return nil
}

func (s *FileStore) Rename(ctx context.Context, userID, oldPath, newPath string) error {
	oldPath, err := storage.NormalizePath(oldPath)
	if err != nil {
		return err
	}
	newPath, err = storage.NormalizePath(newPath)
	if err != nil {
		return err
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM nodes WHERE user_id = ? AND path = ?`,
		userID, newPath).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%s: %w", newPath, storage.ErrExists)
	}

	if err := s.ensureParents(ctx, userID, newPath); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Move the node itself, then rewrite the path prefix of any subtree.
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET path = ?, updated_at = ? WHERE user_id = ? AND path = ?`,
		newPath, now, userID, oldPath,
	)
	if err != nil {
		return fmt.Errorf("renaming %s: %w", oldPath, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", oldPath, storage.ErrNotFound)
	}

	// substr counts characters, so the offset must too.
	_, err = s.db.ExecContext(ctx, `
		UPDATE nodes SET path = ? || substr(path, ?), updated_at = ?
		WHERE user_id = ? AND path LIKE ? || '/%'`,
		newPath, utf8.RuneCountInString(oldPath)+1, now, userID, oldPath,
	)
	if err != nil {
		return fmt.Errorf("renaming subtree of %s: %w", oldPath, err)
	}

	s.mirrorRename(userID, oldPath, newPath)
	return nil
}

// ensureParents inserts folder rows for every ancestor of p.
func (s *FileStore) ensureParents(ctx context.Context, userID, p string) error {
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/")
		if err := s.insertFolder(ctx, userID, dir); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) insertFolder(ctx context.Context, userID, p string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (user_id, path, type, content, created_at, updated_at)
		VALUES (?, ?, 'folder', '', ?, ?)
		ON CONFLICT(user_id, path) DO NOTHING`,
		userID, p, now, now,
	)
	if err != nil {
		return fmt.Errorf("creating folder %s: %w", p, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return s.db.Close()
}

// MirrorDir returns the on-disk directory for a user's tree, or "" when
// mirroring is disabled.
func (s *FileStore) MirrorDir(userID string) string {
	if s.mirrorRoot == "" {
		return ""
	}
	return filepath.Join(s.mirrorRoot, userID)
}

func (s *FileStore) mirrorTarget(userID, p string) (string, bool) {
	dir := s.MirrorDir(userID)
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(p)), true
}

func (s *FileStore) mirrorWrite(userID, p, content string) {
	target, ok := s.mirrorTarget(userID, p)
	if !ok {
		return
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		log.Printf("mirror mkdir %s: %v", target, err)
		return
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		log.Printf("mirror write %s: %v", target, err)
	}
}

func (s *FileStore) mirrorMkdir(userID, p string) {
	if target, ok := s.mirrorTarget(userID, p); ok {
		if err := os.MkdirAll(target, 0o755); err != nil {
			log.Printf("mirror mkdir %s: %v", target, err)
		}
	}
}

func (s *FileStore) mirrorRemove(userID, p string) {
	if target, ok := s.mirrorTarget(userID, p); ok {
		if err := os.RemoveAll(target); err != nil {
			log.Printf("mirror remove %s: %v", target, err)
		}
	}
}

func (s *FileStore) mirrorRename(userID, oldPath, newPath string) {
	from, ok := s.mirrorTarget(userID, oldPath)
	if !ok {
		return
	}
	to, _ := s.mirrorTarget(userID, newPath)
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		log.Printf("mirror mkdir %s: %v", to, err)
		return
	}
	if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
		log.Printf("mirror rename %s: %v", from, err)
	}
}
