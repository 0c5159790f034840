package writer

import "time"

// WriterConfig configures a batch writer.
type WriterConfig struct {
	BatchSize     int           // Rows per flush
	FlushInterval time.Duration // Max time a row waits before flush
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains cumulative writer counters.
type WriterMetrics struct {
	Inserts   int64 // New rows
	Updates   int64 // Existing rows overwritten
	Coalesced int64 // Rows replaced in the batch before reaching the database
	Errors    int64 // Failed flushes
	Flushes   int64 // Successful flushes
}
