package transaction

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckKey is the values-bag entry holding the per-transaction secret
// that must match the browser's tr<key> cookie on every claim.
const CheckKey = "check"

var nowFunc = time.Now

// Transaction tracks one in-flight multi-step login/consent flow. The
// values bag carries everything a flow needs across round trips:
// pending relying-party request, forward routes, per-backend login
// results. The check secret is written once at creation and never
// changes.
type Transaction struct {
	Key         string
	StartMoment time.Time
	Values      map[string]any
}

func New() *Transaction {
	return &Transaction{
		Key:         newHex(),
		StartMoment: nowFunc(),
		Values: map[string]any{
			CheckKey: newHex(),
		},
	}
}

// Check returns the theft-check secret.
func (t *Transaction) Check() string {
	check, _ := t.Values[CheckKey].(string)
	return check
}

// GetString reads a string value from the bag, "" when absent.
func (t *Transaction) GetString(key string) string {
	v, _ := t.Values[key].(string)
	return v
}

// GetBool reads a bool value from the bag, false when absent.
func (t *Transaction) GetBool(key string) bool {
	v, _ := t.Values[key].(bool)
	return v
}

// GetStrings reads a string list from the bag. Values round-tripped
// through JSON come back as []any and are converted.
func (t *Transaction) GetStrings(key string) []string {
	switch v := t.Values[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (t *Transaction) String() string {
	return "Transaction " + t.Key
}

func newHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
