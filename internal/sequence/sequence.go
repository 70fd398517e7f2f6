// Package sequence allocates the gap-free daily counters behind document
// numbers. Each (document kind, UTC day) pair owns an independent counter
// starting at 1; numbers render as {PREFIX}-{YYYYMMDD}-{seq:04d}.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Counter prefixes per document kind.
const (
	PrefixPackagingTransfer = "PKG"
	PrefixInboundReceipt    = "IR"
	PrefixShipment          = "SHP"
	PrefixCartonPurchase    = "CP"
	PrefixCartonIssue       = "CI"
)

// Day renders the UTC date used for counter scoping. Workflows compute it
// once before opening the transaction so a retry spanning midnight keeps the
// original counter scope.
func Day(t time.Time) string {
	return t.UTC().Format("20060102")
}

// CounterName scopes a counter to one document kind and one UTC day.
func CounterName(prefix string, t time.Time) string {
	return prefix + "_" + Day(t)
}

// DocNo renders the human-readable document number for an allocated value.
func DocNo(prefix string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, Day(t), seq)
}

// Next increments the named counter and returns its new value. It must run
// inside the posting transaction: the row lock taken by the upsert serialises
// concurrent allocations on the same counter, so no value is ever issued
// twice and the sequence stays gap-free under conflict retries.
func Next(ctx context.Context, tx pgx.Tx, orgID, name string) (int64, error) {
	const q = `
		INSERT INTO counters (org_id, name, value, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (org_id, name)
		DO UPDATE SET value = counters.value + 1, updated_at = NOW()
		RETURNING value`

	var value int64
	if err := tx.QueryRow(ctx, q, orgID, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("sequence: next %s/%s: %w", orgID, name, err)
	}
	return value, nil
}
