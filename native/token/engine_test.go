package token

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
		clock:  nativecommon.NewFixedClock(100),
		events: &events.Buffer{},
	}
	f.registry = access.NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetAuthorizer(f.auth)
	f.registry.SetClock(f.clock)
	f.registry.SetEmitter(f.events)
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetAccess(f.registry)
	f.engine.SetAuthorizer(f.auth)
	f.engine.SetClock(f.clock)
	f.engine.SetEmitter(f.events)
	return f
}

func (f *fixture) initialize(t *testing.T, admin crypto.Address) {
	t.Helper()
	f.auth.Bind(admin)
	require.NoError(t, f.engine.Initialize(admin, 7, "Protocol Dollar", "pusd"))
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	admin := testAddr(1)

	f.auth.Bind(admin)
	err := f.engine.Initialize(admin, 19, "Protocol Dollar", "PUSD")
	require.True(t, errors.Is(err, errInvalidDecimals))

	f.initialize(t, admin)
	meta, err := f.engine.Metadata()
	require.NoError(t, err)
	require.Equal(t, "PUSD", meta.Symbol)
	require.Equal(t, uint32(7), meta.Decimals)

	err = f.engine.Initialize(admin, 7, "Again", "AGN")
	require.True(t, errors.Is(err, errAlreadyInitialized))
}

func TestMintTransferBurn(t *testing.T) {
	f := newFixture(t)
	admin, alice, bob := testAddr(1), testAddr(2), testAddr(3)
	f.initialize(t, admin)

	require.NoError(t, f.engine.Mint(admin, alice, big.NewInt(1_000)))

	f.auth.Bind(alice)
	require.NoError(t, f.engine.Transfer(alice, bob, big.NewInt(400)))
	err := f.engine.Transfer(alice, bob, big.NewInt(601))
	require.True(t, errors.Is(err, nativecommon.ErrInsufficientBalance))

	require.NoError(t, f.engine.Burn(alice, big.NewInt(100)))

	aliceBal, err := f.engine.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), aliceBal.Int64())
	bobBal, err := f.engine.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(400), bobBal.Int64())

	supply, err := f.state.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, int64(900), supply.Int64())

	// Only the admin may mint.
	err = f.engine.Mint(alice, alice, big.NewInt(1))
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization))
}

func TestAllowanceExpiry(t *testing.T) {
	f := newFixture(t)
	admin, owner, spender, sink := testAddr(1), testAddr(2), testAddr(3), testAddr(4)
	f.initialize(t, admin)
	require.NoError(t, f.engine.Mint(admin, owner, big.NewInt(1_000)))

	f.auth.Bind(owner)
	err := f.engine.Approve(owner, spender, big.NewInt(10), 99)
	require.True(t, errors.Is(err, errExpiredApproval))
	require.NoError(t, f.engine.Approve(owner, spender, big.NewInt(300), 150))

	f.auth.Bind(spender)
	require.NoError(t, f.engine.TransferFrom(spender, owner, sink, big.NewInt(200)))
	remaining, err := f.engine.Allowance(owner, spender)
	require.NoError(t, err)
	require.Equal(t, int64(100), remaining.Int64())

	err = f.engine.BurnFrom(spender, owner, big.NewInt(101))
	require.True(t, errors.Is(err, errInsufficientAllow))

	f.clock.Set(151)
	remaining, err = f.engine.Allowance(owner, spender)
	require.NoError(t, err)
	require.Zero(t, remaining.Sign())
	err = f.engine.TransferFrom(spender, owner, sink, big.NewInt(1))
	require.True(t, errors.Is(err, nativecommon.ErrEconomic))
}

func TestFrozenAccountCannotMoveFunds(t *testing.T) {
	f := newFixture(t)
	admin, alice, bob := testAddr(1), testAddr(2), testAddr(3)
	f.initialize(t, admin)
	require.NoError(t, f.engine.Mint(admin, alice, big.NewInt(50)))
	require.NoError(t, f.registry.Freeze(admin, alice))

	f.auth.Bind(alice)
	require.True(t, errors.Is(f.engine.Transfer(alice, bob, big.NewInt(1)), nativecommon.ErrAccountFrozen))
	require.True(t, errors.Is(f.engine.Burn(alice, big.NewInt(1)), nativecommon.ErrAccountFrozen))

	// Receiving is unaffected.
	f.auth.Bind(admin)
	require.NoError(t, f.engine.Mint(admin, alice, big.NewInt(5)))
}
