// Package storage hands out presigned upload URLs for business logos and galleries.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"

	"github.com/google/uuid"
)

// Blobs is the object store.
type Blobs interface {
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

type Kind string

const (
	KindLogo    Kind = "logo"
	KindGallery Kind = "gallery"
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Upload tells the browser where to PUT the file and where it will be served from.
type Upload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"uploadUrl"`
	PublicURL   string    `json:"publicUrl"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Service struct {
	blobs   Blobs
	baseURL string
	ttl     time.Duration
	maxSize int64
	now     func() time.Time
}

func New(blobs Blobs, cfg config.StorageConfig) *Service {
	return &Service{
		blobs:   blobs,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		ttl:     time.Duration(cfg.PresignTTL) * time.Second,
		maxSize: cfg.MaxUploadBytes,
		now:     time.Now,
	}
}

// PresignUpload validates the file and returns a presigned PUT under
// businesses/<id>/<kind>/<uuid>.<ext>.
func (s *Service) PresignUpload(ctx context.Context, businessID string, kind Kind, contentType string, size int64) (*Upload, error) {
	if kind != KindLogo && kind != KindGallery {
		return nil, errors.NewValidationFailedError("kind must be logo or gallery")
	}
	ext, ok := extensions[contentType]
	if !ok {
		return nil, errors.NewValidationFailedError("only jpeg, png and webp images are accepted")
	}
	if size <= 0 || size > s.maxSize {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("file size must be between 1 and %d bytes", s.maxSize)).
			WithMetadata("maxBytes", s.maxSize)
	}

	key := fmt.Sprintf("businesses/%s/%s/%s.%s", businessID, kind, uuid.NewString(), ext)
	url, err := s.blobs.PresignPut(ctx, key, contentType, size, s.ttl)
	if err != nil {
		return nil, errors.NewStorageFailedError(err)
	}
	return &Upload{
		Key:         key,
		UploadURL:   url,
		PublicURL:   s.PublicURL(key),
		ContentType: contentType,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}, nil
}

func (s *Service) PublicURL(key string) string {
	return s.baseURL + "/" + key
}

// KeyFromURL returns the object key of a URL this service issued.
func (s *Service) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Delete removes an object belonging to businessID.
func (s *Service) Delete(ctx context.Context, businessID, key string) error {
	if !strings.HasPrefix(key, "businesses/"+businessID+"/") {
		return errors.NewForbiddenError("object does not belong to this business")
	}
	if err := s.blobs.DeleteObject(ctx, key); err != nil {
		return errors.NewStorageFailedError(err)
	}
	return nil
}
