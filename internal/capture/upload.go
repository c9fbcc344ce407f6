package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
	"github.com/tphakala/fieldlog/internal/photostore"
)

// DefaultMaxUploadBytes is used when no upload limit is configured.
const DefaultMaxUploadBytes = 20 << 20

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".heif": true, ".webp": true, ".gif": true,
}

// Upload is an image sent by a client.
type Upload struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// UploadAdapter is the server-side Adapter: the client already took the photo
// and the adapter only stores the bytes under photos/{userId}/{uuid}{ext}.
type UploadAdapter struct {
	store   photostore.Store
	userID  string
	upload  Upload
	maxSize int64
	log     logger.Logger
	metrics metrics.Recorder
}

// NewUploadAdapter creates an adapter for a single upload. A maxSize of 0
// applies DefaultMaxUploadBytes.
func NewUploadAdapter(store photostore.Store, userID string, upload Upload, maxSize int64, log logger.Logger, rec metrics.Recorder) *UploadAdapter {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.Global().Module("capture")
	}
	return &UploadAdapter{
		store:   store,
		userID:  userID,
		upload:  upload,
		maxSize: maxSize,
		log:     log,
		metrics: metrics.OrNop(rec),
	}
}

// Capture stores the uploaded camera image.
func (a *UploadAdapter) Capture(ctx context.Context) (string, error) {
	return a.put(ctx)
}

// PickFromGallery stores the uploaded gallery image.
func (a *UploadAdapter) PickFromGallery(ctx context.Context) (string, error) {
	return a.put(ctx)
}

func (a *UploadAdapter) put(ctx context.Context) (string, error) {
	if a.upload.Body == nil {
		return "", a.rejected("no image in request")
	}

	contentType := strings.ToLower(strings.TrimSpace(a.upload.ContentType))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType != "" && contentType != "application/octet-stream" && !strings.HasPrefix(contentType, "image/") {
		return "", a.rejected(fmt.Sprintf("unsupported content type %q", contentType))
	}

	ext := extensionFor(a.upload.Filename, contentType)
	if ext == "" {
		return "", a.rejected(fmt.Sprintf("unsupported image file %q", a.upload.Filename))
	}

	data, err := io.ReadAll(io.LimitReader(a.upload.Body, a.maxSize+1))
	if err != nil {
		return "", errors.New(err).
			Component("capture").
			Category(errors.CategoryCapture).
			Context("operation", "read_upload").
			Build()
	}
	switch {
	case len(data) == 0:
		return "", a.rejected("empty image")
	case int64(len(data)) > a.maxSize:
		return "", a.rejected(fmt.Sprintf("image exceeds %d bytes", a.maxSize))
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = photostore.ContentTypeFor(ext)
	}
	key := PhotoKey(a.userID, uuid.NewString(), ext)

	start := time.Now()
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), contentType)
	a.metrics.RecordDuration(metrics.OpPhotoUpload, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordOperation(metrics.OpPhotoUpload, metrics.StatusError)
		a.metrics.RecordError(metrics.OpPhotoUpload, metrics.ErrorTypeStorage)
		return "", err
	}
	a.metrics.RecordOperation(metrics.OpPhotoUpload, metrics.StatusSuccess)
	if sized, ok := a.metrics.(interface{ ObservePhotoUpload(int64) }); ok {
		sized.ObservePhotoUpload(info.Size)
	}

	a.log.Debug("photo stored",
		logger.String("key", info.Key),
		logger.Int64("size_bytes", info.Size),
		logger.String("driver", string(a.store.Driver())))
	return info.Key, nil
}

func (a *UploadAdapter) rejected(reason string) error {
	return errors.New(fmt.Errorf("%w: %s", observation.ErrCaptureUnavailable, reason)).
		Component("capture").
		Category(errors.CategoryValidation).
		Context("user_id", a.userID).
		Build()
}

// PhotoKey renders the storage key of an uploaded photo.
func PhotoKey(userID, id, ext string) string {
	return path.Join("photos", userID, id+ext)
}

// extensionFor prefers the file name's extension and falls back to the
// content type. It returns "" when neither names a known image format.
func extensionFor(filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if imageExtensions[ext] {
		return ext
	}
	if contentType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil {
		return ""
	}
	for _, e := range exts {
		if imageExtensions[e] {
			return e
		}
	}
	return ""
}
