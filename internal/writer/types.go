package writer

import "time"

// WriterConfig holds batching parameters for the price-history writer.
type WriterConfig struct {
	// BatchSize is the row count that forces an immediate flush.
	BatchSize int

	// FlushInterval is the maximum time a row waits in the batch.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible batching defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics tracks writer throughput counters.
type WriterMetrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
}
