package staking

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"deficore/core/state"
	"deficore/crypto"
	nativecommon "deficore/native/common"
	"deficore/storage"
	"deficore/storage/trie"
)

type fixture struct {
	engine *Engine
	state  *state.Manager
	auth   *nativecommon.CallerAuthorizer
	clock  *nativecommon.FixedClock
	admin  crypto.Address
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

func newFixture(t *testing.T, rate, minDuration uint64) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	f := &fixture{
		state: state.NewManager(tr),
		auth:  &nativecommon.CallerAuthorizer{},
		clock: nativecommon.NewFixedClock(0),
		admin: testAddr(1),
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetAuthorizer(f.auth)
	f.engine.SetClock(f.clock)

	f.auth.Bind(f.admin)
	asset := testAddr(9)
	require.NoError(t, f.engine.Initialize(f.admin, asset, asset, rate, minDuration))
	// Reward funding.
	require.NoError(t, f.state.Credit(f.engine.VaultAddress(), big.NewInt(1_000_000)))
	return f
}

func (f *fixture) fund(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.state.Credit(addr, big.NewInt(amount)))
}

func TestRewardScenario(t *testing.T) {
	f := newFixture(t, 100, 0)
	user := testAddr(2)
	f.fund(t, user, 1_000)

	f.clock.Set(10)
	f.auth.Bind(user)
	require.NoError(t, f.engine.Stake(user, big.NewInt(1_000)))

	f.clock.Set(60)
	pending, err := f.engine.PendingRewards(user)
	require.NoError(t, err)
	require.Equal(t, int64(500), pending.Int64())

	reward, err := f.engine.ClaimRewards(user)
	require.NoError(t, err)
	require.Equal(t, int64(500), reward.Int64())

	_, err = f.engine.ClaimRewards(user)
	require.True(t, errors.Is(err, errNoRewards))
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t, 1, 0)
	err := f.engine.Initialize(f.admin, testAddr(9), testAddr(9), 1, 0)
	require.True(t, errors.Is(err, errAlreadyInitialized))

	f.auth.Bind(testAddr(5))
	err = f.engine.UpdateRewardRate(testAddr(5), 50)
	require.True(t, errors.Is(err, nativecommon.ErrAuthorization))
}

func TestUnstakeHonoursMinimumDuration(t *testing.T) {
	f := newFixture(t, 10, 20)
	user := testAddr(2)
	f.fund(t, user, 500)

	f.auth.Bind(user)
	require.NoError(t, f.engine.Stake(user, big.NewInt(500)))

	f.clock.Set(19)
	_, err := f.engine.Unstake(user, big.NewInt(100))
	require.True(t, errors.Is(err, errMinDuration))

	f.clock.Set(20)
	_, err = f.engine.Unstake(user, big.NewInt(501))
	require.True(t, errors.Is(err, errExceedsStake))

	returned, err := f.engine.Unstake(user, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, int64(500), returned.Int64())

	// 500 principal + 500*10*20/10000 = 10 reward.
	bal, err := f.state.Balance(user)
	require.NoError(t, err)
	require.Equal(t, int64(510), bal.Int64())

	_, err = f.engine.StakeInfo(user)
	require.True(t, errors.Is(err, errNoStake))
	pending, err := f.engine.PendingRewards(user)
	require.NoError(t, err)
	require.Zero(t, pending.Sign())
}

func TestTotalStakedMatchesPositions(t *testing.T) {
	f := newFixture(t, 3, 0)
	users := []crypto.Address{testAddr(2), testAddr(3), testAddr(4)}
	for _, u := range users {
		f.fund(t, u, 100_000)
	}
	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 200; step++ {
		f.clock.Set(uint64(step))
		u := users[rng.Intn(len(users))]
		f.auth.Bind(u)
		amount := big.NewInt(int64(rng.Intn(500) + 1))
		if rng.Intn(2) == 0 {
			require.NoError(t, f.engine.Stake(u, amount))
		} else {
			_, _ = f.engine.Unstake(u, amount)
		}

		pool, err := f.engine.PoolInfo()
		require.NoError(t, err)
		sum := big.NewInt(0)
		for _, holder := range users {
			info, err := f.engine.loadStake(holder)
			require.NoError(t, err)
			if info != nil {
				sum.Add(sum, info.Amount)
			}
		}
		if pool.TotalStaked.Cmp(sum) != 0 {
			t.Fatalf("step %d: total staked %s != sum of stakes %s", step, pool.TotalStaked, sum)
		}
	}
}

func TestEmergencyWithdrawKeepsPrincipal(t *testing.T) {
	f := newFixture(t, 1, 0)
	user := testAddr(2)
	f.fund(t, user, 700)
	f.auth.Bind(user)
	require.NoError(t, f.engine.Stake(user, big.NewInt(700)))

	f.auth.Bind(f.admin)
	swept, err := f.engine.EmergencyWithdrawRewards(f.admin)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), swept.Int64())

	vault, err := f.state.Balance(f.engine.VaultAddress())
	require.NoError(t, err)
	require.Equal(t, int64(700), vault.Int64())
}

func TestRateChangeOnlyAffectsFutureAccrual(t *testing.T) {
	f := newFixture(t, 100, 0)
	early, late := testAddr(2), testAddr(3)
	f.fund(t, early, 1_000)
	f.fund(t, late, 1_000)

	f.auth.Bind(early)
	require.NoError(t, f.engine.Stake(early, big.NewInt(1_000)))

	f.clock.Set(50)
	f.auth.Bind(f.admin)
	require.NoError(t, f.engine.UpdateRewardRate(f.admin, 0))
	pending, err := f.engine.PendingRewards(early)
	require.NoError(t, err)
	require.Equal(t, int64(500), pending.Int64())

	f.clock.Set(100)
	pending, err = f.engine.PendingRewards(early)
	require.NoError(t, err)
	require.Equal(t, int64(500), pending.Int64(), "zero rate must not accrue")

	require.NoError(t, f.engine.UpdateRewardRate(f.admin, 200))
	f.auth.Bind(late)
	require.NoError(t, f.engine.Stake(late, big.NewInt(1_000)))

	f.clock.Set(110)
	pending, err = f.engine.PendingRewards(early)
	require.NoError(t, err)
	require.Equal(t, int64(700), pending.Int64())
	pending, err = f.engine.PendingRewards(late)
	require.NoError(t, err)
	require.Equal(t, int64(200), pending.Int64())

	f.auth.Bind(early)
	reward, err := f.engine.ClaimRewards(early)
	require.NoError(t, err)
	require.Equal(t, int64(700), reward.Int64())
	pending, err = f.engine.PendingRewards(early)
	require.NoError(t, err)
	require.Zero(t, pending.Sign())
}
