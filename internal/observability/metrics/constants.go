package metrics

// Operation names recorded by pipeline components.
const (
	// OpCapture covers an adapter call plus geolocation.
	OpCapture = "capture"
	// OpStageDraft is a draft upsert.
	OpStageDraft = "stage_draft"
	OpClearDraft = "clear_draft"
	// OpCatalogFetch is a catalog fetch that reached the store.
	OpCatalogFetch = "catalog_fetch"
	// OpCatalogCache records cache hits and misses.
	OpCatalogCache = "catalog_cache"
	OpConfirm      = "confirm"
	OpReconcile    = "reconcile"
	OpTransition   = "transition"
	OpPublish      = "publish"
	OpPush         = "push"
	OpPhotoUpload  = "photo_upload"
)

// Operation outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Error types used with RecordError.
const (
	ErrorTypeValidation = "validation"
	ErrorTypeNoDraft    = "no_active_draft"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeWrite      = "write_failed"
	ErrorTypePartial    = "partial_commit"
	ErrorTypeFetch      = "fetch_failed"
	ErrorTypeCapture    = "capture_unavailable"
	ErrorTypeLocation   = "location_unavailable"
	ErrorTypeTransition = "invalid_transition"
	ErrorTypeStorage    = "storage"
	ErrorTypeBroker     = "broker"
	ErrorTypePush       = "push"
)
