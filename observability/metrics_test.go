package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"deficore/core"
	"deficore/core/events"
	"deficore/native/lending"
)

func TestEventMetricsCountByModule(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.liquidations)
	m.Emit(events.Notification{Type: lending.EventTypeLiquidated})
	m.Emit(events.Notification{Type: "staking.staked"})
	m.Emit(nil)

	require.Equal(t, before+1, testutil.ToFloat64(m.liquidations))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.published.WithLabelValues("staking", "staking.staked")), float64(1))
}

func TestProtocolMetricsObserve(t *testing.T) {
	m := Protocol()
	m.ObserveCall("supply", core.OutcomeOK, 3*time.Millisecond)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.calls.WithLabelValues("supply", core.OutcomeOK)), float64(1))

	m.ObservePools(core.PoolGauges{
		LendingSupplied:    big.NewInt(1_000),
		LendingBorrowed:    big.NewInt(600),
		LendingUtilization: 6000,
		TotalStaked:        nil,
	})
	require.Equal(t, float64(1_000), testutil.ToFloat64(m.supplied))
	require.Equal(t, float64(6000), testutil.ToFloat64(m.utilization))
	require.Zero(t, testutil.ToFloat64(m.staked))
}

func TestRPCMetricsErrorCodes(t *testing.T) {
	m := RPC()
	m.Observe("borrow", -32020, time.Millisecond)
	m.RecordThrottle("")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("borrow", "-32020")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")), float64(1))
}
