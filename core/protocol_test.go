package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deficore/core/events"
	"deficore/crypto"
	nativecommon "deficore/native/common"
	"deficore/native/lending"
	"deficore/storage"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
	pools    []PoolGauges
}

func (r *recordingObserver) ObserveCall(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]string)
	}
	r.outcomes[operation] = outcome
}

func (r *recordingObserver) ObservePools(g PoolGauges) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = append(r.pools, g)
}

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xA0
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

type harness struct {
	db       *storage.MemDB
	protocol *Protocol
	sink     *events.Buffer
	observer *recordingObserver
	admin    crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	h := &harness{db: db, sink: &events.Buffer{}, observer: &recordingObserver{}, admin: testAddress(0x01)}
	p, err := NewProtocol(db, Options{Sink: h.sink, Observer: h.observer})
	require.NoError(t, err)
	h.protocol = p
	ctx := context.Background()
	require.NoError(t, p.TokenInitialize(ctx, h.admin, 7, "Deficore", "DFC"))
	require.NoError(t, p.TokenMint(ctx, h.admin, h.admin, big.NewInt(1_000_000)))
	h.sink.Reset()
	return h
}

func (h *harness) balance(t *testing.T, addr crypto.Address) int64 {
	t.Helper()
	bal, err := h.protocol.TokenBalance(context.Background(), addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestFailedCallLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testAddress(0x10)
	require.NoError(t, h.protocol.TokenTransfer(ctx, h.admin, user, big.NewInt(500)))
	h.sink.Reset()
	root := h.protocol.Root()

	err := h.protocol.TokenTransfer(ctx, user, h.admin, big.NewInt(501))
	require.True(t, errors.Is(err, nativecommon.ErrInsufficientBalance), "got %v", err)
	require.Equal(t, root, h.protocol.Root())
	require.Zero(t, h.sink.Len())
	require.Equal(t, int64(500), h.balance(t, user))
	require.Equal(t, OutcomeRejected, h.observer.outcomes["token_transfer"])

	// Only the administrator may mint.
	err = h.protocol.TokenMint(ctx, user, user, big.NewInt(1))
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization), "got %v", err)
	require.Equal(t, root, h.protocol.Root())
}

func TestRollbackDiscardsPartialWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testAddress(0x10)
	root := h.protocol.Root()
	failure := errors.New("late failure")

	err := h.protocol.execute(ctx, "partial", user, func() error {
		if err := h.protocol.state.Credit(user, big.NewInt(250)); err != nil {
			return err
		}
		h.protocol.buffer.Emit(events.Notification{Type: "test.partial"})
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Equal(t, root, h.protocol.Root())
	require.Zero(t, h.balance(t, user))
	require.Zero(t, h.sink.Len())
}

func TestCommitPublishesEventsAndPersistsHead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	beneficiary := testAddress(0x20)
	require.NoError(t, h.protocol.AdvanceHeight(10))
	require.NoError(t, h.protocol.CreateVesting(ctx, h.admin, beneficiary, big.NewInt(1_000), 10, 0, 110))

	published := h.sink.Drain()
	require.Len(t, published, 1)
	require.Equal(t, "vesting.created", published[0].EventType())
	note, ok := published[0].(events.Notification)
	require.True(t, ok)
	require.Equal(t, uint64(10), note.Height)
	require.Equal(t, int64(1_000), note.Amount.Int64())

	require.NoError(t, h.protocol.AdvanceHeight(60))
	claimed, err := h.protocol.ClaimVesting(ctx, beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(500), claimed.Int64())
	root := h.protocol.Root()

	reopened, err := NewProtocol(h.db, Options{})
	require.NoError(t, err)
	require.Equal(t, uint64(60), reopened.Height())
	require.Equal(t, root, reopened.Root())
	info, err := reopened.VestingInfo(ctx, beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(500), info.Claimed.Int64())
	frozen, err := reopened.IsFrozen(ctx, beneficiary)
	require.NoError(t, err)
	require.True(t, frozen)
}

func TestAdvanceHeightIsMonotonic(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.protocol.AdvanceHeight(5))
	require.NoError(t, h.protocol.AdvanceHeight(5))
	require.True(t, errors.Is(h.protocol.AdvanceHeight(4), ErrHeightRegression))
	require.True(t, errors.Is(h.protocol.AdvanceHeight(MaxHeight+1), ErrHeightOverflow))
	next, err := h.protocol.Tick()
	require.NoError(t, err)
	require.Equal(t, uint64(6), next)

	clock := NewClock(MaxHeight)
	_, err = clock.Tick()
	require.True(t, errors.Is(err, ErrHeightOverflow))
}

func TestLendingThroughHost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lender, borrower := testAddress(0x10), testAddress(0x11)
	require.NoError(t, h.protocol.InitializeLendingPool(ctx, h.admin, 0, 0, 7500, 0))
	require.NoError(t, h.protocol.TokenTransfer(ctx, h.admin, lender, big.NewInt(1_000)))
	require.NoError(t, h.protocol.TokenTransfer(ctx, h.admin, borrower, big.NewInt(900)))

	require.NoError(t, h.protocol.Supply(ctx, lender, big.NewInt(1_000)))
	require.NoError(t, h.protocol.Borrow(ctx, borrower, big.NewInt(600), big.NewInt(900)))
	require.Equal(t, int64(600), h.balance(t, borrower))

	gauges := h.observer.pools[len(h.observer.pools)-1]
	require.Equal(t, int64(1_000), gauges.LendingSupplied.Int64())
	require.Equal(t, int64(600), gauges.LendingBorrowed.Int64())
	require.Equal(t, uint64(6000), gauges.LendingUtilization)

	result, err := h.protocol.BatchLiquidate(ctx, lender, []lending.LiquidationTarget{
		{Borrower: borrower, RepayAmount: big.NewInt(100)},
	})
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{borrower}, result.Skipped)
	require.Zero(t, result.TotalRepaid.Sign())

	_, err = h.protocol.RiskMetrics(ctx, lender)
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization))
	metrics, err := h.protocol.RiskMetrics(ctx, h.admin)
	require.NoError(t, err)
	require.Equal(t, uint64(6000), metrics.UtilizationRate)
}

func TestAdminReadsDoNotCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	borrower := testAddress(0x11)
	require.NoError(t, h.protocol.InitializeLendingPool(ctx, h.admin, 0, 0, 7500, 0))
	require.NoError(t, h.protocol.Supply(ctx, h.admin, big.NewInt(1_000)))
	require.NoError(t, h.protocol.TokenTransfer(ctx, h.admin, borrower, big.NewInt(900)))
	require.NoError(t, h.protocol.Borrow(ctx, borrower, big.NewInt(600), big.NewInt(900)))

	root := h.protocol.Root()
	commits := len(h.observer.pools)
	published := len(h.sink.Drain())

	metrics, err := h.protocol.RiskMetrics(ctx, h.admin)
	require.NoError(t, err)
	require.Equal(t, uint64(6000), metrics.UtilizationRate)
	found, err := h.protocol.FindLiquidatable(ctx, h.admin, nil)
	require.NoError(t, err)
	require.Empty(t, found)
	_, err = h.protocol.FindLiquidatable(ctx, borrower, nil)
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization))

	require.Equal(t, root, h.protocol.Root())
	if got := len(h.observer.pools); got != commits {
		t.Fatalf("admin reads committed: %d commits, want %d", got, commits)
	}
	require.NotContains(t, h.observer.outcomes, "getProtocolRiskMetrics")
	require.NotContains(t, h.observer.outcomes, "findLiquidatablePositions")
	require.Empty(t, h.sink.Drain())
	require.NotZero(t, published)
}
