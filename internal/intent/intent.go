// Package intent turns the untrusted JSON object produced by the language
// model into a typed shopping intent.
//
// [Validate] is the gate every object passes before it can touch storage.
// [Parse] runs the same checks and converts the object into an [Intent];
// nothing downstream of Parse handles untyped maps except the raw copy kept
// for the audit history.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned by Parse when the object fails validation.
var ErrInvalid = errors.New("intent: invalid intent object")

// RequiredFields lists the keys every intent object must carry.
var RequiredFields = []string{"product", "quantity", "category", "action", "status"}

// errorKey marks an object the extractor could not produce cleanly.
const errorKey = "error"

// TimestampKey is the key under which the server timestamp is recorded.
const TimestampKey = "timestamp"

// Action is the lower-cased action verb of an intent.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionDelete Action = "delete"
)

// IsRemoval reports whether a removes an entry from the wishlist.
func (a Action) IsRemoval() bool {
	return a == ActionRemove || a == ActionDelete
}

// Intent is a validated shopping command.
type Intent struct {
	Product  string
	Quantity int
	Category string
	Action   Action

	// RawAction is the action exactly as supplied, used in rejection messages.
	RawAction string
	Status    string

	// Raw is a shallow copy of the validated object, written to history.
	Raw map[string]any
}

// Validate reports whether v is an intent object: a JSON object with every
// required field, no error marker, and a quantity that coerces to an integer.
// It never mutates v.
func Validate(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return false
	}
	if _, bad := m[errorKey]; bad {
		return false
	}
	for _, k := range RequiredFields {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	_, ok = CoerceQuantity(m["quantity"])
	return ok
}

// Parse validates v and converts it into an Intent.
func Parse(v any) (Intent, error) {
	if !Validate(v) {
		return Intent{}, ErrInvalid
	}
	m := v.(map[string]any)
	qty, _ := CoerceQuantity(m["quantity"])
	rawAction := asString(m["action"])

	return Intent{
		Product:   asString(m["product"]),
		Quantity:  qty,
		Category:  asString(m["category"]),
		Action:    Action(strings.ToLower(strings.TrimSpace(rawAction))),
		RawAction: rawAction,
		Status:    asString(m["status"]),
		Raw:       maps.Clone(m),
	}, nil
}

// Record returns the history form of the intent: the raw object plus the
// server timestamp in RFC 3339 UTC.
func (in Intent) Record(at time.Time) map[string]any {
	out := maps.Clone(in.Raw)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[TimestampKey] = FormatTimestamp(at)
	return out
}

// FormatTimestamp renders t the way history records store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CoerceQuantity converts a decoded JSON value to an int. Numbers are
// truncated toward zero, strings must hold a base-10 integer (surrounding
// whitespace allowed) and booleans map to 0 and 1. Non-finite and
// out-of-range numbers fail.
func CoerceQuantity(v any) (int, bool) {
	switch q := v.(type) {
	case int:
		return q, true
	case int32:
		return int(q), true
	case int64:
		return int(q), true
	case bool:
		if q {
			return 1, true
		}
		return 0, true
	case float64:
		return truncate(q)
	case float32:
		return truncate(float64(q))
	case json.Number:
		if n, err := q.Int64(); err == nil {
			return int(n), true
		}
		f, err := q.Float64()
		if err != nil {
			return 0, false
		}
		return truncate(f)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(q))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func truncate(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return 0, false
	}
	return int(t), true
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
