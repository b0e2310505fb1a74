package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/pkg/cloudinary"
)

// CloudinaryStorage stores works as Cloudinary assets; locations are secure URLs.
type CloudinaryStorage struct {
	service *cloudinary.Service
}

// NewCloudinaryStorage wraps a configured Cloudinary service.
func NewCloudinaryStorage(service *cloudinary.Service) *CloudinaryStorage {
	return &CloudinaryStorage{service: service}
}

func (s *CloudinaryStorage) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	return s.service.Upload(ctx, name, content)
}

func (s *CloudinaryStorage) Open(ctx context.Context, location string) (Object, error) {
	payload, err := s.service.Download(ctx, location)
	if errors.Is(err, cloudinary.ErrAssetNotFound) {
		return Object{}, apperr.Wrap(apperr.ErrGone, err)
	}
	if err != nil {
		return Object{}, err
	}

	return Object{
		Content: nopSeekCloser{bytes.NewReader(payload)},
		Size:    int64(len(payload)),
		ModTime: time.Time{},
	}, nil
}

func (s *CloudinaryStorage) Delete(ctx context.Context, location string) error {
	return s.service.Destroy(ctx, location)
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
