package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
)

// LocalStorage keeps files in a directory on the local disk.
type LocalStorage struct {
	root   string
	logger zerolog.Logger
}

// NewLocalStorage prepares root and returns a storage writing into it.
func NewLocalStorage(root string, logger zerolog.Logger) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &LocalStorage{
		root:   abs,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Root returns the absolute storage directory.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move file into place: %w", err)
	}

	s.logger.Debug().Str("location", name).Msg("file stored")

	return name, nil
}

func (s *LocalStorage) Open(ctx context.Context, location string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	path, err := s.resolve(location)
	if err != nil {
		return Object{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, apperr.New(apperr.ErrGone, "stored file is missing")
		}
		return Object{}, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return Object{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return Object{}, apperr.New(apperr.ErrGone, "stored file is missing")
	}

	return Object{Content: file, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalStorage) Delete(_ context.Context, location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// resolve maps a location to a path and refuses anything escaping the root.
func (s *LocalStorage) resolve(location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", apperr.New(apperr.ErrForbidden, "empty storage location")
	}

	path := location
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, location)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.ErrForbidden, "storage location outside storage root")
	}

	return path, nil
}
