// Package ledger applies signed quantity deltas to running balances with a
// non-negativity guarantee. Callers operate on an in-transaction snapshot of
// the balance record and stage the full updated value back on success.
package ledger

import "fmt"

// Quantity covers the two balance representations used by postings: whole
// pack/carton counts and kilogram weights.
type Quantity interface {
	~int64 | ~float64
}

// InsufficientBalanceError reports a delta that would drive a balance below
// zero. Current and Required keep enough precision for both quantity kinds;
// callers format their own user-facing message from the fields.
type InsufficientBalanceError struct {
	Key      string
	SubKey   string
	Current  float64
	Required float64
}

func (e *InsufficientBalanceError) Error() string {
	if e.SubKey == "" {
		return fmt.Sprintf("ledger: insufficient balance on %s: current=%v, required=%v", e.Key, e.Current, e.Required)
	}
	return fmt.Sprintf("ledger: insufficient balance for %s on %s: current=%v, required=%v", e.SubKey, e.Key, e.Current, e.Required)
}

// Apply adds delta to balances[subKey], treating a missing sub-key as zero.
// On an insufficient balance the map is left untouched and the error carries
// key, current value and requested magnitude. Unrelated sub-keys are never
// modified, which gives the merge semantics balance writes rely on.
func Apply[Q Quantity](balances map[string]Q, key, subKey string, delta Q) (Q, error) {
	current := balances[subKey]
	next := current + delta
	if next < 0 {
		return current, &InsufficientBalanceError{
			Key:      key,
			SubKey:   subKey,
			Current:  float64(current),
			Required: float64(-delta),
		}
	}
	balances[subKey] = next
	return next, nil
}

// ApplyScalar adjusts a single-quantity balance, such as the remaining weight
// of one receipt or the stock of one carton item.
func ApplyScalar[Q Quantity](key string, current, delta Q) (Q, error) {
	next := current + delta
	if next < 0 {
		return current, &InsufficientBalanceError{
			Key:      key,
			Current:  float64(current),
			Required: float64(-delta),
		}
	}
	return next, nil
}
