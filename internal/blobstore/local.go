package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var blobIDPattern = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// LocalDir stores blob bytes as flat files named by image id under one
// directory. The catalog database may live in the same directory; List
// only reports id-shaped regular files, so foreign names are never
// mistaken for blobs.
type LocalDir struct {
	root string
}

// NewLocalDir creates a local blob directory rooted at root.
func NewLocalDir(root string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o700); err != nil {
		return nil, err
	}
	return &LocalDir{root: abs}, nil
}

// Put streams bytes into a temp file and renames it into place under id.
func (d *LocalDir) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return 0, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dst, err := d.pathFromID(id)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Join(d.root, "tmp"), "put-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	return n, nil
}

// Open returns a reader for the blob backing id.
func (d *LocalDir) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if d == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFromID(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Stat reports size and modification time for the blob backing id.
func (d *LocalDir) Stat(ctx context.Context, id string) (BlobInfo, error) {
	var zero BlobInfo
	if d == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	path, err := d.pathFromID(id)
	if err != nil {
		return zero, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return zero, err
	}
	return BlobInfo{SizeBytes: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes a blob. Missing files are ignored.
func (d *LocalDir) Delete(ctx context.Context, id string) error {
	if d == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.pathFromID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the ids of every blob in the directory. Entries whose name
// is not id-shaped (the catalog file, the tmp directory) are skipped.
func (d *LocalDir) List(ctx context.Context) ([]string, error) {
	if d == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !blobIDPattern.MatchString(name) {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}

func (d *LocalDir) pathFromID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("blob id is required")
	}
	if !blobIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid blob id")
	}
	return filepath.Join(d.root, id), nil
}
