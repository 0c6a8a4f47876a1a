package vesting

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deficore/core/events"
	"deficore/core/state"
	"deficore/crypto"
	"deficore/native/access"
	nativecommon "deficore/native/common"
	"deficore/storage"
	"deficore/storage/trie"
)

type fixture struct {
	engine   *Engine
	registry *access.Registry
	state    *state.Manager
	auth     *nativecommon.CallerAuthorizer
	clock    *nativecommon.FixedClock
	events   *events.Buffer
	admin    crypto.Address
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	f := &fixture{
		state:  state.NewManager(tr),
		auth:   &nativecommon.CallerAuthorizer{},
		clock:  nativecommon.NewFixedClock(0),
		events: &events.Buffer{},
		admin:  testAddr(1),
	}
	f.registry = access.NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetAuthorizer(f.auth)
	f.registry.SetClock(f.clock)
	require.NoError(t, f.registry.SetAdmin(f.admin))

	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetAccess(f.registry)
	f.engine.SetAuthorizer(f.auth)
	f.engine.SetClock(f.clock)
	f.engine.SetEmitter(f.events)
	require.NoError(t, f.state.Credit(f.admin, big.NewInt(10_000)))
	return f
}

func (f *fixture) balance(t *testing.T, addr crypto.Address) int64 {
	t.Helper()
	bal, err := f.state.Balance(addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestLinearScheduleScenario(t *testing.T) {
	f := newFixture(t)
	beneficiary := testAddr(2)

	f.auth.Bind(f.admin)
	require.NoError(t, f.engine.Create(f.admin, beneficiary, big.NewInt(1_000), 100, 0, 200))
	require.Equal(t, int64(9_000), f.balance(t, f.admin))
	require.Equal(t, int64(1_000), f.balance(t, beneficiary))
	frozen, err := f.registry.IsFrozen(beneficiary)
	require.NoError(t, err)
	require.True(t, frozen)

	f.clock.Set(150)
	claimable, err := f.engine.Claimable(beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(500), claimable.Int64())

	f.auth.Bind(beneficiary)
	claimed, err := f.engine.Claim(beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(500), claimed.Int64())

	info, err := f.engine.Info(beneficiary)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, int64(500), info.Claimed.Int64())

	f.clock.Set(300)
	claimable, err = f.engine.Claimable(beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(500), claimable.Int64())

	_, err = f.engine.Claim(beneficiary)
	require.NoError(t, err)
	info, err = f.engine.Info(beneficiary)
	require.NoError(t, err)
	require.Nil(t, info)
	frozen, err = f.registry.IsFrozen(beneficiary)
	require.NoError(t, err)
	require.False(t, frozen)
}

func TestClaimableBoundsAndMonotonicity(t *testing.T) {
	schedule := &Schedule{
		Total:   big.NewInt(777),
		Claimed: big.NewInt(100),
		Start:   10,
		Cliff:   40,
		End:     110,
	}
	prev := big.NewInt(0)
	for h := uint64(0); h <= 200; h++ {
		got := claimableAt(schedule, h)
		if got.Sign() < 0 || got.Cmp(schedule.Remaining()) > 0 {
			t.Fatalf("height %d: claimable %s out of bounds", h, got)
		}
		if h < 40 && got.Sign() != 0 {
			t.Fatalf("height %d: expected nothing before the cliff, got %s", h, got)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("height %d: claimable decreased from %s to %s", h, prev, got)
		}
		if h >= 110 && got.Cmp(schedule.Remaining()) != 0 {
			t.Fatalf("height %d: expected remainder after end, got %s", h, got)
		}
		prev = got
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	beneficiary := testAddr(2)
	f.auth.Bind(f.admin)

	cases := []struct {
		name              string
		total             int64
		start, cliff, end uint64
		want              error
	}{
		{name: "end before start", total: 1, start: 10, end: 10, want: errInvalidBounds},
		{name: "cliff before start", total: 1, start: 10, cliff: 5, end: 20, want: errInvalidCliff},
		{name: "negative total", total: -1, start: 1, end: 2, want: nativecommon.ErrInvalidAmount},
		{name: "underfunded", total: 10_001, start: 1, end: 2, want: errInsufficientFund},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.engine.Create(f.admin, beneficiary, big.NewInt(tc.total), tc.start, tc.cliff, tc.end)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	f.auth.Bind(beneficiary)
	err := f.engine.Create(beneficiary, beneficiary, big.NewInt(1), 1, 0, 2)
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization))
}

func TestDuplicateGrantRejected(t *testing.T) {
	f := newFixture(t)
	beneficiary := testAddr(2)
	f.auth.Bind(f.admin)
	require.NoError(t, f.engine.Create(f.admin, beneficiary, big.NewInt(100), 1, 0, 10))
	err := f.engine.Create(f.admin, beneficiary, big.NewInt(100), 1, 0, 10)
	require.True(t, errors.Is(err, errScheduleExists))
	require.Equal(t, int64(100), f.balance(t, beneficiary))
}

func TestRevokeReturnsRemainder(t *testing.T) {
	f := newFixture(t)
	beneficiary := testAddr(2)
	f.auth.Bind(f.admin)
	require.NoError(t, f.engine.Create(f.admin, beneficiary, big.NewInt(1_000), 0, 0, 100))

	f.clock.Set(25)
	f.auth.Bind(beneficiary)
	_, err := f.engine.Claim(beneficiary)
	require.NoError(t, err)

	f.auth.Bind(f.admin)
	returned, err := f.engine.Revoke(f.admin, beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(750), returned.Int64())
	require.Equal(t, int64(9_750), f.balance(t, f.admin))
	require.Equal(t, int64(250), f.balance(t, beneficiary))

	frozen, err := f.registry.IsFrozen(beneficiary)
	require.NoError(t, err)
	require.False(t, frozen)

	_, err = f.engine.Revoke(f.admin, beneficiary)
	require.True(t, errors.Is(err, errScheduleNotFound))

	var types []string
	for _, ev := range f.events.Drain() {
		types = append(types, ev.EventType())
	}
	require.Equal(t, []string{EventTypeCreated, EventTypeClaimed, EventTypeRevoked}, types)
}

func TestPausedModuleRejectsRevoke(t *testing.T) {
	f := newFixture(t)
	beneficiary := testAddr(2)
	f.auth.Bind(f.admin)
	require.NoError(t, f.engine.Create(f.admin, beneficiary, big.NewInt(1_000), 0, 0, 100))
	f.events.Reset()

	f.engine.SetPauses(nativecommon.Pauses{moduleName: true})
	f.clock.Set(40)
	if _, err := f.engine.Revoke(f.admin, beneficiary); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	schedule, err := f.engine.Info(beneficiary)
	require.NoError(t, err)
	require.NotNil(t, schedule)
	require.Equal(t, int64(1_000), f.balance(t, beneficiary))
	require.Equal(t, int64(9_000), f.balance(t, f.admin))
	require.Zero(t, f.events.Len())

	f.engine.SetPauses(nativecommon.Pauses{})
	returned, err := f.engine.Revoke(f.admin, beneficiary)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), returned.Int64())
}
