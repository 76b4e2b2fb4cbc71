package remembered

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no record exists, or when the stored
// record had already expired (in which case it has also been deleted).
var ErrNotFound = errors.New("remembered: not found")

var nowFunc = time.Now

// Record is a generic expiring fact: "trust this relying party",
// "this login is still valid", and similar memory. A nil Expiry means
// the record never expires. Data may be empty; for some record types
// mere presence is the signal.
type Record struct {
	Type   string
	Key    string
	Expiry *time.Time
	Data   string
}

// Expired reports whether the record's expiry, if any, has passed.
func (r *Record) Expired() bool {
	return r.Expiry != nil && !r.Expiry.After(nowFunc())
}

// Store persists Records under a (type, composite key) identity.
//
// Get must never return stale data: an expired record is deleted as a
// side effect of the lookup that finds it.
type Store interface {
	Remember(ctx context.Context, typ string, ttl time.Duration, data string, keys ...string) error
	RememberForever(ctx context.Context, typ string, data string, keys ...string) error
	Get(ctx context.Context, typ string, keys ...string) (*Record, error)
	Cleanup(ctx context.Context) (int64, error)
}

// RememberForDays is a convenience wrapper used by trust-root memory.
func RememberForDays(ctx context.Context, s Store, typ string, days int, data string, keys ...string) error {
	return s.Remember(ctx, typ, time.Duration(days)*24*time.Hour, data, keys...)
}

// compositeKey joins key components with a length prefix per component,
// so no component value can collide with another split of the same
// joined string. Usernames and backend names may contain any character.
func compositeKey(keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%d:%s", len(k), k)
	}
	return b.String()
}
