package catalog

import "github.com/tphakala/fieldlog/internal/observation"

// Result is the outcome of a catalog fetch: either an ordered species list or
// the reason the fetch failed. An empty list is a success.
type Result struct {
	records []observation.SpeciesRecord
	err     error
}

// Ok wraps a successful fetch.
func Ok(records []observation.SpeciesRecord) Result {
	if records == nil {
		records = []observation.SpeciesRecord{}
	}
	return Result{records: records}
}

// Failed wraps a failed fetch. err must not be nil.
func Failed(err error) Result {
	return Result{err: err}
}

// Ok reports whether the fetch succeeded.
func (r Result) Ok() bool {
	return r.err == nil
}

// Err returns the failure reason, or nil on success.
func (r Result) Err() error {
	return r.err
}

// Records returns the species in catalog order. It is nil for a failed fetch.
func (r Result) Records() []observation.SpeciesRecord {
	return r.records
}

// Contains reports whether species is part of a successful result.
func (r Result) Contains(species observation.SpeciesRecord) bool {
	for _, rec := range r.records {
		if rec.Same(species) {
			return true
		}
	}
	return false
}

// Lookup returns the record in r matching species by category and scientific
// name. The returned record carries the catalog's own spelling.
func (r Result) Lookup(species observation.SpeciesRecord) (observation.SpeciesRecord, bool) {
	for _, rec := range r.records {
		if rec.Same(species) {
			return rec, true
		}
	}
	return observation.SpeciesRecord{}, false
}
