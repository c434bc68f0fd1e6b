package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// NodeType distinguishes files from folders in a user's tree.
type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Node is one entry in a user's virtual file tree. Path is relative and
// slash-separated.
type Node struct {
	UserID    string    `json:"-"`
	Path      string    `json:"path"`
	Type      NodeType  `json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence interface for per-user file trees. Writes are
// mirrored to disk so shell sessions see saved files.
type Store interface {
	// List returns every node for a user, ordered by path.
	List(ctx context.Context, userID string) ([]Node, error)

	// Read returns a file's content.
	Read(ctx context.Context, userID, p string) (string, error)

	// Save creates or overwrites a file, creating parent folders as needed.
	Save(ctx context.Context, userID, p, content string) error

	// Mkdir creates a folder (and any missing parents).
	Mkdir(ctx context.Context, userID, p string) error

	// Delete removes a node; deleting a folder removes its subtree.
	Delete(ctx context.Context, userID, p string) error

	// Rename moves a node; renaming a folder moves its subtree.
	Rename(ctx context.Context, userID, oldPath, newPath string) error

	// Close releases resources.
	Close() error
}

// NormalizePath validates and canonicalizes a client-supplied path.
// Absolute paths and paths escaping the tree root are rejected.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("invalid path %q", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return clean, nil
}
