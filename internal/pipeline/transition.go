package pipeline

import (
	"fmt"

	"github.com/tphakala/fieldlog/internal/observation"
)

// Transition computes the state that follows ev in s together with the effects
// the caller must run. It has no side effects. Pairs not listed below return
// an error wrapping ErrInvalidTransition and leave s unchanged.
//
//	Capturing        + CaptureSucceeded -> Reviewing
//	Reviewing        + CategoryChosen   -> CategorySelected (loading), FetchCatalog
//	CategorySelected + CategoryChosen   -> CategorySelected (loading), FetchCatalog
//	CategorySelected + CatalogLoaded    -> CategorySelected (stale Seq ignored)
//	CategorySelected + SpeciesTapped    -> SpeciesPicked
//	CategorySelected + BackPressed      -> Reviewing
//	SpeciesPicked    + ConfirmPressed   -> SpeciesPicked, Confirm
//	SpeciesPicked    + ConfirmSucceeded -> Confirmed
//	SpeciesPicked    + ConfirmFailed    -> SpeciesPicked with LastError
//	SpeciesPicked    + CancelPressed    -> CategorySelected
//	any              + DraftRestored    -> Reviewing
func Transition(s State, ev Event) (State, []Effect, error) {
	if s == nil {
		s = Capturing{}
	}

	if e, ok := ev.(DraftRestored); ok {
		if e.Draft.ImageRef == "" {
			return s, nil, invalid(s, ev, "restored draft has no image")
		}
		return Reviewing{Draft: e.Draft, FetchSeq: fetchSeq(s)}, nil, nil
	}

	switch st := s.(type) {
	case Capturing:
		if e, ok := ev.(CaptureSucceeded); ok {
			if e.Draft.ImageRef == "" {
				return s, nil, invalid(s, ev, "capture produced no image")
			}
			return Reviewing{Draft: e.Draft}, nil, nil
		}

	case Reviewing:
		if e, ok := ev.(CategoryChosen); ok {
			return selectCategory(s, ev, st.Draft, e.Category, st.FetchSeq)
		}
		if e, ok := ev.(CatalogLoaded); ok && e.Seq <= st.FetchSeq {
			return s, nil, nil
		}

	case CategorySelected:
		switch e := ev.(type) {
		case CategoryChosen:
			return selectCategory(s, ev, st.Draft, e.Category, st.FetchSeq)
		case CatalogLoaded:
			if e.Seq != st.FetchSeq || e.Category != st.Category || !st.Loading {
				return s, nil, nil
			}
			st.Loading = false
			st.Catalog = e.Result
			return st, nil, nil
		case SpeciesTapped:
			if st.Loading || !st.Catalog.Ok() {
				return s, nil, invalid(s, ev, "catalog not loaded")
			}
			record, found := st.Catalog.Lookup(withCategory(e.Species, st.Category))
			if !found {
				return s, nil, invalid(s, ev, "species not in the loaded catalog")
			}
			return SpeciesPicked{CategorySelected: st, Species: record}, nil, nil
		case BackPressed:
			return Reviewing{Draft: st.Draft, FetchSeq: st.FetchSeq}, nil, nil
		}

	case SpeciesPicked:
		switch e := ev.(type) {
		case ConfirmPressed:
			st.LastError = nil
			return st, []Effect{Confirm{Category: st.Category, Species: st.Species}}, nil
		case ConfirmSucceeded:
			return Confirmed{Entry: e.Entry}, nil, nil
		case ConfirmFailed:
			st.LastError = e.Err
			return st, nil, nil
		case CancelPressed:
			return st.CategorySelected, nil, nil
		case CatalogLoaded:
			if e.Seq <= st.FetchSeq {
				return s, nil, nil
			}
		}
	}

	return s, nil, invalid(s, ev, "")
}

func selectCategory(s State, ev Event, draft observation.Draft, category observation.Category, seq uint64) (State, []Effect, error) {
	if !category.Valid() {
		return s, nil, fmt.Errorf("%w: %w", invalid(s, ev, ""), observation.ErrInvalidCategory)
	}
	next := CategorySelected{
		Draft:    draft,
		Category: category,
		Loading:  true,
		FetchSeq: seq + 1,
	}
	return next, []Effect{FetchCatalog{Category: category, Seq: next.FetchSeq}}, nil
}

func withCategory(species observation.SpeciesRecord, category observation.Category) observation.SpeciesRecord {
	if species.Category == "" {
		species.Category = category
	}
	return species
}

func fetchSeq(s State) uint64 {
	switch st := s.(type) {
	case Reviewing:
		return st.FetchSeq
	case CategorySelected:
		return st.FetchSeq
	case SpeciesPicked:
		return st.FetchSeq
	default:
		return 0
	}
}

func invalid(s State, ev Event, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: %T in %s", observation.ErrInvalidTransition, ev, s.Name())
	}
	return fmt.Errorf("%w: %T in %s: %s", observation.ErrInvalidTransition, ev, s.Name(), reason)
}
