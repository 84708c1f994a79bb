package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const indexFile = "index.html"

// FileStore writes artifacts to {root}/{subdomain}/index.html.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("artifacts: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create root %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(subdomain string) (string, error) {
	if !validSubdomain(subdomain) {
		return "", fmt.Errorf("artifacts: invalid subdomain %q", subdomain)
	}
	return filepath.Join(s.root, subdomain, indexFile), nil
}

// Put writes via a temp file and rename so readers never see partial HTML.
func (s *FileStore) Put(_ context.Context, subdomain, html string) error {
	path, err := s.path(subdomain)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifacts: mkdir %s: %w", subdomain, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.html")
	if err != nil {
		return fmt.Errorf("artifacts: temp file: %w", err)
	}
	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("artifacts: write %s: %w", subdomain, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifacts: close %s: %w", subdomain, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifacts: rename %s: %w", subdomain, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, subdomain string) (string, error) {
	path, err := s.path(subdomain)
	if err != nil {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("artifacts: read %s: %w", subdomain, err)
	}
	return string(data), nil
}

func (s *FileStore) Delete(_ context.Context, subdomain string) error {
	path, err := s.path(subdomain)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("artifacts: delete %s: %w", subdomain, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("artifacts: list: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), indexFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
