package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"exto/internal/images"
)

// Local keeps uploads in a directory served under images.UploadPrefix.
type Local struct {
	baseDir string
}

func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		baseDir = "./data/uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// Dir is the directory holding the files.
func (s *Local) Dir() string {
	return s.baseDir
}

// Save writes r to baseDir/name and returns that on-disk path.
func (s *Local) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name")
	}
	fullPath := filepath.Join(s.baseDir, name)
	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return fullPath, nil
}

func (s *Local) Delete(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, images.UploadPrefix) {
		return nil
	}
	name := filepath.Base(strings.TrimPrefix(ref, images.UploadPrefix))
	if err := os.Remove(filepath.Join(s.baseDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
