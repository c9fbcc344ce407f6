package photostore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/conf"
)

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "photos/u-1/fox.jpg", strings.NewReader("jpeg-bytes"), "")
	require.NoError(t, err)
	assert.Equal(t, "photos/u-1/fox.jpg", info.Key)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)

	got, rc, err := store.Get(ctx, "photos/u-1/fox.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, int64(10), got.Size)

	require.NoError(t, store.Delete(ctx, "photos/u-1/fox.jpg"))
	_, _, err = store.Get(ctx, "photos/u-1/fox.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, "photos/u-1/fox.jpg"), ErrNotFound)

	_, err = store.Put(ctx, "../escape.jpg", strings.NewReader("x"), "")
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	t.Attr("component", "photostore")

	exerciseStore(t, NewMemory())
}

func TestFilesystemStore(t *testing.T) {
	t.Parallel()
	t.Attr("component", "photostore")

	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), &conf.PhotoSettings{Driver: conf.PhotoDriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())

	store, err = Open(context.Background(), &conf.PhotoSettings{Driver: conf.PhotoDriverFS, Path: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())

	_, err = Open(context.Background(), &conf.PhotoSettings{Driver: "ftp"})
	require.Error(t, err)
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"photos/u-1/a.jpg", "photos/u-1/a.jpg", false},
		{"photos//u-1/./a.jpg", "photos/u-1/a.jpg", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"photos/../../etc/passwd", "", true},
		{`photos\u-1\a.jpg`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			got, err := sanitizeKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
