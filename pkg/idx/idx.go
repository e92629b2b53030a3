// Package idx mints the ULIDs used for user ids and request ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in its canonical 26-character form.
type ID string

var ErrInvalid = errors.New("idx: invalid ulid")

// Monotonic entropy is not safe for concurrent use.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an ID stamped with the current UTC time. IDs minted in the
// same millisecond still sort in creation order.
func New() ID {
	mu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy)
	mu.Unlock()
	return ID(u.String())
}

// Parse accepts a canonical ULID, ignoring surrounding whitespace.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalid
	}
	return ID(u.String()), nil
}

func (id ID) String() string { return string(id) }

