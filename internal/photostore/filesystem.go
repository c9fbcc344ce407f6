package photostore

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tphakala/fieldlog/internal/errors"
)

// Filesystem stores photos as plain files under a root directory. The content
// type is derived from the file extension on read.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root, creating the directory.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "photos"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.New(err).
			Component("photostore").
			Category(errors.CategoryFileIO).
			Context("root", root).
			Build()
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver {
	return DriverFilesystem
}

func (s *Filesystem) pathFor(key string) (string, string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", keyError(err, key)
	}
	return k, filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes to a temporary file and renames it into place so readers never
// see a partial photo.
func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error) {
	k, p, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, storageError(err, "put", k)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Info{}, storageError(err, "put", k)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return Info{}, storageError(err, "put", k)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Info{}, storageError(err, "put", k)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return Info{}, storageError(err, "put", k)
	}

	if contentType == "" {
		contentType = ContentTypeFor(k)
	}
	st, err := os.Stat(p)
	if err != nil {
		return Info{}, storageError(err, "put", k)
	}
	return Info{Key: k, Size: size, ContentType: contentType, LastModified: st.ModTime().UTC()}, nil
}

func (s *Filesystem) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	k, p, err := s.pathFor(key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, nil, notFound(k)
		}
		return Info{}, nil, storageError(err, "get", k)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Info{}, nil, storageError(err, "get", k)
	}
	return Info{Key: k, Size: st.Size(), ContentType: ContentTypeFor(k), LastModified: st.ModTime().UTC()}, f, nil
}

func (s *Filesystem) Delete(_ context.Context, key string) error {
	k, p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(k)
		}
		return storageError(err, "delete", k)
	}
	return nil
}
