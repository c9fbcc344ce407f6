// Package pipeline drives one user's walk from a staged draft to a confirmed
// log entry. States, events and effects are closed sets of types and
// Transition is a pure function over them; Session performs the effects.
package pipeline

import (
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/observation"
)

// State is one of Capturing, Reviewing, CategorySelected, SpeciesPicked or
// Confirmed.
type State interface {
	Name() string
	isState()
}

// Capturing waits for a capture.
type Capturing struct{}

// Reviewing shows the staged draft.
type Reviewing struct {
	Draft observation.Draft
	// FetchSeq is the sequence number of the last catalog fetch issued in
	// this session, carried so later fetches stay ordered.
	FetchSeq uint64
}

// CategorySelected shows the catalog of Category, or a spinner while Loading.
type CategorySelected struct {
	Draft    observation.Draft
	Category observation.Category
	Loading  bool
	Catalog  catalog.Result
	FetchSeq uint64
}

// SpeciesPicked waits for the user to confirm Species.
type SpeciesPicked struct {
	CategorySelected
	Species observation.SpeciesRecord
	// LastError holds the reason the previous confirmation failed.
	LastError error
}

// Confirmed is terminal.
type Confirmed struct {
	Entry observation.LogEntry
}

func (Capturing) Name() string        { return "capturing" }
func (Reviewing) Name() string        { return "reviewing" }
func (CategorySelected) Name() string { return "category_selected" }
func (SpeciesPicked) Name() string    { return "species_picked" }
func (Confirmed) Name() string        { return "confirmed" }

func (Capturing) isState()        {}
func (Reviewing) isState()        {}
func (CategorySelected) isState() {}
func (SpeciesPicked) isState()    {}
func (Confirmed) isState()        {}

// Event is an input to Transition.
type Event interface {
	isEvent()
}

type (
	CaptureSucceeded struct{ Draft observation.Draft }
	CategoryChosen   struct{ Category observation.Category }
	SpeciesTapped    struct{ Species observation.SpeciesRecord }
	CancelPressed    struct{}
	BackPressed      struct{}
	ConfirmPressed   struct{}
	ConfirmSucceeded struct{ Entry observation.LogEntry }
	ConfirmFailed    struct{ Err error }
)

// CatalogLoaded delivers the outcome of the FetchCatalog effect with the
// same Seq.
type CatalogLoaded struct {
	Category observation.Category
	Seq      uint64
	Result   catalog.Result
}

// DraftRestored resumes a session from a draft found in the store.
type DraftRestored struct {
	Draft observation.Draft
}

func (CaptureSucceeded) isEvent() {}
func (CategoryChosen) isEvent()   {}
func (CatalogLoaded) isEvent()    {}
func (SpeciesTapped) isEvent()    {}
func (CancelPressed) isEvent()    {}
func (BackPressed) isEvent()      {}
func (ConfirmPressed) isEvent()   {}
func (ConfirmSucceeded) isEvent() {}
func (ConfirmFailed) isEvent()    {}
func (DraftRestored) isEvent()    {}

// Effect is work Transition asks the caller to perform.
type Effect interface {
	isEffect()
}

// FetchCatalog loads the catalog of Category. The outcome is fed back as
// CatalogLoaded carrying the same Seq.
type FetchCatalog struct {
	Category observation.Category
	Seq      uint64
}

// Confirm promotes the draft. The outcome is fed back as ConfirmSucceeded or
// ConfirmFailed.
type Confirm struct {
	Category observation.Category
	Species  observation.SpeciesRecord
}

func (FetchCatalog) isEffect() {}
func (Confirm) isEffect()      {}
