package observation

import "github.com/tphakala/fieldlog/internal/errors"

// Error kinds. Callers match them with errors.Is; the enhanced errors built
// around them keep them in the chain.
var (
	ErrCaptureUnavailable  = errors.NewStd("capture unavailable")
	ErrLocationUnavailable = errors.NewStd("location unavailable")
	ErrNoActiveDraft       = errors.NewStd("no active draft")
	ErrCatalogFetchFailed  = errors.NewStd("catalog fetch failed")
	ErrWriteFailed         = errors.NewStd("write failed")
	// ErrPartialCommit means the log entry exists in committing state but the
	// draft could not be cleared or the entry not finalized. Reconciliation
	// completes the commit.
	ErrPartialCommit     = errors.NewStd("partial commit")
	ErrTimedOut          = errors.NewStd("timed out")
	ErrInvalidTransition = errors.NewStd("invalid pipeline transition")
	ErrSpeciesNotFound   = errors.NewStd("species not found in catalog")
	ErrInvalidCategory   = errors.NewStd("invalid category")
)
