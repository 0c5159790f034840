package correlation

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator returns a fresh correlation id per call.
// It must be safe for concurrent use.
type IDGenerator func() string

// NewUUIDGenerator returns random UUIDv4 ids.
func NewUUIDGenerator() IDGenerator {
	return uuid.NewString
}

// NewSequenceGenerator returns prefix + an increasing counter, starting at 1.
func NewSequenceGenerator(prefix string) IDGenerator {
	var seq uint64
	return func() string {
		return prefix + strconv.FormatUint(atomic.AddUint64(&seq, 1), 10)
	}
}
