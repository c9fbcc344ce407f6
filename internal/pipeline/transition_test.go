package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/observation"
)

var (
	redFox    = observation.SpeciesRecord{CommonName: "Red Fox", ScientificName: "Vulpes vulpes", Category: observation.CategoryFauna}
	badger    = observation.SpeciesRecord{CommonName: "American Badger", ScientificName: "Taxidea taxus", Category: observation.CategoryFauna}
	dandelion = observation.SpeciesRecord{CommonName: "Common Dandelion", ScientificName: "Taraxacum officinale", Category: observation.CategoryFlora}

	faunaList = []observation.SpeciesRecord{redFox, badger}
	floraList = []observation.SpeciesRecord{dandelion}

	draft = observation.Draft{
		ImageRef:        "photos/u-1/fox.jpg",
		ObservationText: "crossing the trail",
		CapturedAt:      time.Date(2026, 6, 1, 20, 15, 0, 0, time.UTC),
		Location:        &observation.Location{Latitude: 43.0731, Longitude: -89.4012},
	}
)

func loadedFauna(seq uint64) CategorySelected {
	return CategorySelected{
		Draft:    draft,
		Category: observation.CategoryFauna,
		Catalog:  catalog.Ok(faunaList),
		FetchSeq: seq,
	}
}

func TestTransitionHappyPath(t *testing.T) {
	t.Parallel()
	t.Attr("component", "pipeline")

	var s State = Capturing{}

	s, effects, err := Transition(s, CaptureSucceeded{Draft: draft})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, Reviewing{Draft: draft}, s)

	s, effects, err = Transition(s, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	require.Equal(t, []Effect{FetchCatalog{Category: observation.CategoryFauna, Seq: 1}}, effects)
	sel := s.(CategorySelected)
	assert.True(t, sel.Loading)
	assert.Equal(t, uint64(1), sel.FetchSeq)

	s, effects, err = Transition(s, CatalogLoaded{Category: observation.CategoryFauna, Seq: 1, Result: catalog.Ok(faunaList)})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, loadedFauna(1), s)

	s, _, err = Transition(s, SpeciesTapped{Species: observation.SpeciesRecord{ScientificName: "vulpes vulpes"}})
	require.NoError(t, err)
	picked := s.(SpeciesPicked)
	assert.Equal(t, redFox, picked.Species, "the catalog's own record is kept")

	s, effects, err = Transition(s, ConfirmPressed{})
	require.NoError(t, err)
	assert.Equal(t, []Effect{Confirm{Category: observation.CategoryFauna, Species: redFox}}, effects)
	assert.IsType(t, SpeciesPicked{}, s)

	entry := observation.LogEntry{ID: "e-1", UserID: "u-1", Category: observation.CategoryFauna}
	s, _, err = Transition(s, ConfirmSucceeded{Entry: entry})
	require.NoError(t, err)
	assert.Equal(t, Confirmed{Entry: entry}, s)
}

func TestTransitionCategorySwitchDiscardsCatalog(t *testing.T) {
	t.Parallel()

	s, effects, err := Transition(loadedFauna(3), CategoryChosen{Category: observation.CategoryFlora})
	require.NoError(t, err)

	sel := s.(CategorySelected)
	assert.Equal(t, observation.CategoryFlora, sel.Category)
	assert.True(t, sel.Loading)
	assert.Equal(t, uint64(4), sel.FetchSeq)
	assert.Nil(t, sel.Catalog.Records())
	assert.Equal(t, draft, sel.Draft)
	assert.Equal(t, []Effect{FetchCatalog{Category: observation.CategoryFlora, Seq: 4}}, effects)

	// The Fauna result from fetch 3 arrives late and is ignored.
	stale, effects, err := Transition(sel, CatalogLoaded{Category: observation.CategoryFauna, Seq: 3, Result: catalog.Ok(faunaList)})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, sel, stale)

	loaded, _, err := Transition(sel, CatalogLoaded{Category: observation.CategoryFlora, Seq: 4, Result: catalog.Ok(floraList)})
	require.NoError(t, err)
	assert.False(t, loaded.(CategorySelected).Loading)
	assert.Equal(t, floraList, loaded.(CategorySelected).Catalog.Records())
}

func TestTransitionFailedFetchIsShown(t *testing.T) {
	t.Parallel()

	sel := CategorySelected{Draft: draft, Category: observation.CategoryFauna, Loading: true, FetchSeq: 1}
	s, _, err := Transition(sel, CatalogLoaded{Category: observation.CategoryFauna, Seq: 1, Result: catalog.Failed(observation.ErrCatalogFetchFailed)})
	require.NoError(t, err)

	got := s.(CategorySelected)
	assert.False(t, got.Loading)
	assert.False(t, got.Catalog.Ok())

	_, _, err = Transition(got, SpeciesTapped{Species: redFox})
	assert.ErrorIs(t, err, observation.ErrInvalidTransition)
}

func TestTransitionBackAndCancel(t *testing.T) {
	t.Parallel()

	picked := SpeciesPicked{CategorySelected: loadedFauna(2), Species: redFox}

	s, _, err := Transition(picked, CancelPressed{})
	require.NoError(t, err)
	assert.Equal(t, loadedFauna(2), s, "cancel keeps the loaded catalog")

	s, _, err = Transition(s, BackPressed{})
	require.NoError(t, err)
	assert.Equal(t, Reviewing{Draft: draft, FetchSeq: 2}, s)

	s, effects, err := Transition(s, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	assert.Equal(t, []Effect{FetchCatalog{Category: observation.CategoryFauna, Seq: 3}}, effects)
	assert.True(t, s.(CategorySelected).Loading)
}

func TestTransitionConfirmFailedKeepsSelection(t *testing.T) {
	t.Parallel()

	picked := SpeciesPicked{CategorySelected: loadedFauna(1), Species: redFox}

	s, effects, err := Transition(picked, ConfirmFailed{Err: observation.ErrWriteFailed})
	require.NoError(t, err)
	assert.Empty(t, effects)
	got := s.(SpeciesPicked)
	assert.Equal(t, redFox, got.Species)
	require.ErrorIs(t, got.LastError, observation.ErrWriteFailed)

	s, _, err = Transition(got, ConfirmPressed{})
	require.NoError(t, err)
	assert.NoError(t, s.(SpeciesPicked).LastError)
}

func TestTransitionDraftRestoredFromAnyState(t *testing.T) {
	t.Parallel()

	states := []State{
		nil,
		Capturing{},
		Reviewing{Draft: observation.Draft{ImageRef: "old.jpg"}},
		loadedFauna(5),
		SpeciesPicked{CategorySelected: loadedFauna(6), Species: redFox},
		Confirmed{},
	}
	for _, from := range states {
		s, effects, err := Transition(from, DraftRestored{Draft: draft})
		require.NoError(t, err)
		assert.Empty(t, effects)
		assert.Equal(t, draft, s.(Reviewing).Draft)
	}

	s, _, _ := Transition(loadedFauna(5), DraftRestored{Draft: draft})
	assert.Equal(t, uint64(5), s.(Reviewing).FetchSeq)
}

func TestTransitionRejectsInvalidPairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"confirm while capturing", Capturing{}, ConfirmPressed{}},
		{"capture without image", Capturing{}, CaptureSucceeded{}},
		{"second capture while reviewing", Reviewing{Draft: draft}, CaptureSucceeded{Draft: draft}},
		{"species tap while reviewing", Reviewing{Draft: draft}, SpeciesTapped{Species: redFox}},
		{"species tap while loading", CategorySelected{Draft: draft, Category: observation.CategoryFauna, Loading: true, FetchSeq: 1}, SpeciesTapped{Species: redFox}},
		{"species outside catalog", loadedFauna(1), SpeciesTapped{Species: dandelion}},
		{"unknown category", Reviewing{Draft: draft}, CategoryChosen{Category: "Fungi"}},
		{"back from species picked", SpeciesPicked{CategorySelected: loadedFauna(1), Species: redFox}, BackPressed{}},
		{"cancel from category", loadedFauna(1), CancelPressed{}},
		{"anything after confirmed", Confirmed{}, CategoryChosen{Category: observation.CategoryFauna}},
		{"restore without image", Reviewing{Draft: draft}, DraftRestored{}},
		{"catalog result with no fetch", Capturing{}, CatalogLoaded{Seq: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, effects, err := Transition(tt.state, tt.event)
			require.ErrorIs(t, err, observation.ErrInvalidTransition)
			assert.Empty(t, effects)
			assert.Equal(t, tt.state, s)
		})
	}
}
