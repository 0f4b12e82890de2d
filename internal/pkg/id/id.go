package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entropy is monotonic so ids minted in the same millisecond still sort in
// creation order. ulid.MonotonicEntropy is not safe for concurrent use.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

func New() string {
	return NewAt(time.Now())
}

// NewAt mints an id whose time component is t, so notification ids sort
// with their created_at.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
