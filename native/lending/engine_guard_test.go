package lending

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "deficore/native/common"
)

func TestSupplyGuardBlocksMutation(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 0, 0, 7500, 0)
	supplier := makeAddress(0xCC)
	f.fund(t, supplier, 500)
	f.engine.SetPauses(nativecommon.Pauses{"lending": true})

	f.auth.Bind(supplier)
	if err := f.engine.Supply(supplier, big.NewInt(100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if balance := f.balance(t, supplier); balance != 500 {
		t.Fatalf("expected supplier balance to remain 500, got %d", balance)
	}
	if supplied := f.pool(t).TotalSupplied; supplied.Sign() != 0 {
		t.Fatalf("expected pool supply unchanged, got %s", supplied)
	}
}

func TestFrozenAccountBlocked(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 0, 0, 7500, 0)
	user := makeAddress(0xCD)
	f.fund(t, user, 500)
	if err := f.registry.Freeze(f.admin, user); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	f.auth.Bind(user)
	if err := f.engine.Supply(user, big.NewInt(100)); !errors.Is(err, nativecommon.ErrAccountFrozen) {
		t.Fatalf("expected frozen supply to fail, got %v", err)
	}
	if err := f.engine.Borrow(user, big.NewInt(0), big.NewInt(100)); !errors.Is(err, nativecommon.ErrAccountFrozen) {
		t.Fatalf("expected frozen borrow to fail, got %v", err)
	}
}

func TestCallerMustAuthorize(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 0, 0, 7500, 0)
	victim, thief := makeAddress(0x20), makeAddress(0x21)
	f.supply(t, victim, 300)

	f.auth.Bind(thief)
	if _, err := f.engine.Withdraw(victim, big.NewInt(300)); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized withdraw, got %v", err)
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t)
	f.auth.Bind(f.admin)
	if err := f.engine.Initialize(f.admin, 0, 0, 0, 0); !errors.Is(err, errInvalidCollateralRatio) {
		t.Fatalf("expected collateral factor error, got %v", err)
	}
	if err := f.engine.Initialize(f.admin, 0, 0, 7500, 10_001); !errors.Is(err, errInvalidReserveFactor) {
		t.Fatalf("expected reserve factor error, got %v", err)
	}
	if _, err := f.engine.PoolInfo(); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	f.initialize(t, 0, 0, 7500, 0)
	if err := f.engine.Initialize(f.admin, 0, 0, 7500, 0); !errors.Is(err, errAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	params, err := f.engine.LiquidationParams()
	if err != nil {
		t.Fatalf("liquidation params: %v", err)
	}
	if params != DefaultLiquidationParams() {
		t.Fatalf("unexpected default params %+v", params)
	}
}
