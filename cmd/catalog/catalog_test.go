package catalog

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/observation"
)

func TestParseSeedEmbeddedFixture(t *testing.T) {
	t.Parallel()

	records, err := parseSeed(defaultSeed)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.True(t, rec.Category.Valid(), rec.ScientificName)
	}
}

func TestParseSeedNormalizesAndRejects(t *testing.T) {
	t.Parallel()

	records, err := parseSeed([]byte("species:\n  - {category: fauna, common_name: Red Fox, scientific_name: Vulpes vulpes}\n"))
	require.NoError(t, err)
	assert.Equal(t, observation.CategoryFauna, records[0].Category)

	_, err = parseSeed([]byte("species:\n  - {category: Fungi, common_name: Fly Agaric, scientific_name: Amanita muscaria}\n"))
	require.ErrorIs(t, err, observation.ErrInvalidCategory)

	_, err = parseSeed([]byte("species:\n  - {category: Flora, common_name: Bur Oak}\n"))
	require.Error(t, err)

	_, err = parseSeed([]byte("species: [unterminated"))
	require.Error(t, err)
}

func TestSeedAndListCommands(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Datastore.Type = conf.DatastoreSQLite
	settings.Datastore.SQLite.Path = filepath.Join(t.TempDir(), "fieldlog.db")

	cmd := Command(settings)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"seed"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "(9 new)")

	out.Reset()
	cmd.SetArgs([]string{"seed"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "(0 new)")

	out.Reset()
	cmd.SetArgs([]string{"list", "flora"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "Taraxacum officinale")
	assert.NotContains(t, out.String(), "Vulpes vulpes")

	ds, err := datastore.New(settings, nil)
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	defer ds.Close()
	fauna, err := ds.GetCatalog(t.Context(), observation.CategoryFauna)
	require.NoError(t, err)
	assert.Equal(t, "Red Fox", fauna[0].CommonName)
}
