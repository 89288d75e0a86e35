package proofstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS stores proof artifacts on the local filesystem, sharded by the first
// two digest characters.
type FS struct {
	root string
}

// NewFS creates a filesystem proof store rooted at the given directory.
func NewFS(root string) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("proof store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create proof store root: %w", err)
	}
	return &FS{root: filepath.Clean(root)}, nil
}

// Put validates and persists proof bytes, returning their content address.
// Writing the same content twice is a no-op returning the same ref.
func (s *FS) Put(ctx context.Context, data []byte, meta Metadata) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.root == "" {
		return "", fmt.Errorf("proof store is not configured")
	}
	if err := Validate(data, meta.ContentType); err != nil {
		return "", err
	}

	ref := RefFor(data)
	digest, err := Digest(ref)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, digest[:2])
	path := filepath.Join(dir, digest)

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create proof shard dir: %w", err)
	}

	// Write through a temp file and rename so partial writes never become
	// visible under the content address.
	tmp, err := os.CreateTemp(dir, "put-*")
	if err != nil {
		return "", fmt.Errorf("create proof temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write proof content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close proof temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit proof content: %w", err)
	}
	return ref, nil
}

// Exists reports whether a proof artifact is present.
func (s *FS) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.root == "" {
		return false, fmt.Errorf("proof store is not configured")
	}
	digest, err := Digest(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.root, digest[:2], digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat proof content: %w", err)
}
