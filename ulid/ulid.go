// Package ulid generates the ULIDs used as Instance and Session ids.
package ulid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new, lexically sortable ULID string.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Short returns the last n characters of id (or id itself when it is no
// longer than n).
func Short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}
