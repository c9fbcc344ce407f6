// Package photostore keeps captured photo bytes behind opaque keys. Drafts and
// log entries only ever hold the key.
package photostore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/errors"
)

// Driver identifies a storage backend.
type Driver string

const (
	DriverFilesystem Driver = conf.PhotoDriverFS
	DriverS3         Driver = conf.PhotoDriverS3
	DriverMemory     Driver = conf.PhotoDriverMemory
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.NewStd("photo not found")

// Info describes a stored photo.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the photo storage abstraction used by the capture stage and the
// photo endpoint.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Driver() Driver
}

// Open builds the store selected by settings.Driver.
func Open(ctx context.Context, settings *conf.PhotoSettings) (Store, error) {
	switch Driver(settings.Driver) {
	case DriverFilesystem:
		return NewFilesystem(settings.Path)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          settings.S3.Bucket,
			Region:          settings.S3.Region,
			Endpoint:        settings.S3.Endpoint,
			PathStyle:       settings.S3.PathStyle,
			AccessKeyID:     settings.S3.AccessKeyID,
			SecretAccessKey: settings.S3.SecretAccessKey,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unsupported photo driver %q", settings.Driver).
			Component("photostore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// sanitizeKey rejects keys that could escape the store root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return path.Clean(key), nil
}

// ContentTypeFor guesses the content type from the key's extension.
func ContentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func storageError(err error, op, key string) error {
	return errors.New(err).
		Component("photostore").
		Category(errors.CategoryStorage).
		Context("operation", op).
		Context("key", key).
		Build()
}

func keyError(err error, key string) error {
	return errors.New(err).
		Component("photostore").
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}

func notFound(key string) error {
	return errors.New(ErrNotFound).
		Component("photostore").
		Category(errors.CategoryNotFound).
		Context("key", key).
		Build()
}
