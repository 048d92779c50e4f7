package integration

// Metrics receives the counters EDIRE reports outside the sync log
type Metrics interface {
	// DocumentProcessed counts one document outcome ("created", "bound", "failed", ...)
	DocumentProcessed(sourceID, outcome string)
	// ProtectedWriteBlocked counts guard-dropped field writes
	ProtectedWriteBlocked(sourceID string, fields int)
	// LegacyUnmatched counts reconciler strategy 5 hits
	LegacyUnmatched(sourceID string)
	// Ambiguous counts resolution ambiguities per entity
	Ambiguous(sourceID, entity string)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) DocumentProcessed(string, string)  {}
func (NoopMetrics) ProtectedWriteBlocked(string, int) {}
func (NoopMetrics) LegacyUnmatched(string)            {}
func (NoopMetrics) Ambiguous(string, string)          {}

var _ Metrics = NoopMetrics{}
