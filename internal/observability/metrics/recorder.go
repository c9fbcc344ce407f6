// Package metrics provides the Prometheus collectors used by the pipeline.
package metrics

// Recorder is the narrow interface pipeline components record through.
type Recorder interface {
	// RecordOperation counts an operation with its outcome ("success", "error", "hit", "miss").
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError counts a failed operation by error kind.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything. Components fall back to it when no
// recorder is configured.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}

func (NopRecorder) RecordDuration(string, float64) {}

func (NopRecorder) RecordError(string, string) {}

// OrNop returns r, or a NopRecorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}
