package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayUsesUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2025, 6, 1, 23, 30, 0, 0, loc)

	require.Equal(t, "20250602", Day(local))
}

func TestCounterName(t *testing.T) {
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, "PKG_20250601", CounterName(PrefixPackagingTransfer, day))
	require.Equal(t, "IR_20250601", CounterName(PrefixInboundReceipt, day))
	require.Equal(t, "SHP_20250601", CounterName(PrefixShipment, day))
	require.Equal(t, "CP_20250601", CounterName(PrefixCartonPurchase, day))
	require.Equal(t, "CI_20250601", CounterName(PrefixCartonIssue, day))
}

func TestDocNoZeroPadsToFourDigits(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, "PKG-20250601-0001", DocNo(PrefixPackagingTransfer, day, 1))
	require.Equal(t, "SHP-20250601-0042", DocNo(PrefixShipment, day, 42))
	require.Equal(t, "CI-20250601-9999", DocNo(PrefixCartonIssue, day, 9999))
	// Beyond four digits the number simply grows, it is never truncated.
	require.Equal(t, "CP-20250601-10000", DocNo(PrefixCartonPurchase, day, 10000))
}
