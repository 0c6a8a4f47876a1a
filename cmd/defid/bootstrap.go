package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"deficore/config"
	"deficore/core"
	"deficore/crypto"
	nativecommon "deficore/native/common"
	"deficore/storage"
)

// stakingAsset names the ledger in staking pool metadata; stake and rewards
// both move on the single protocol ledger.
var stakingAsset = crypto.ModuleAddress("token")

func openStorage(cfg *config.Config) (storage.Database, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	case config.StorageLevelDB:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"), storage.LevelOptions{})
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage)
	}
}

// bootstrap installs the ledger and pools from configuration on first start.
// Every step is skipped when its module already holds state, so restarts are
// no-ops.
func bootstrap(ctx context.Context, p *core.Protocol, admin crypto.Address, cfg *config.Config, logger *slog.Logger) error {
	current, err := p.Admin(ctx)
	fresh := errors.Is(err, nativecommon.ErrPrecondition)
	if err != nil && !fresh {
		return fmt.Errorf("read administrator: %w", err)
	}
	switch {
	case fresh || current.IsZero():
		if err := p.TokenInitialize(ctx, admin, cfg.Token.Decimals, cfg.Token.Name, cfg.Token.Symbol); err != nil {
			return fmt.Errorf("initialize token: %w", err)
		}
		supply, err := cfg.Token.InitialSupplyAmount()
		if err != nil {
			return err
		}
		if supply.Sign() > 0 {
			if err := p.TokenMint(ctx, admin, admin, supply); err != nil {
				return fmt.Errorf("mint initial supply: %w", err)
			}
		}
		logger.Info("token initialized",
			slog.String("symbol", cfg.Token.Symbol),
			slog.String("admin", admin.String()),
			slog.String("supply", supply.String()))
	case !current.Equal(admin):
		logger.Warn("keystore key is not the protocol administrator; skipping bootstrap",
			slog.String("admin", current.String()),
			slog.String("keystore", admin.String()))
		return nil
	}

	if cfg.Staking.Enabled {
		_, err := p.StakingPoolInfo(ctx)
		switch {
		case errors.Is(err, nativecommon.ErrPrecondition):
			if err := p.InitializeStaking(ctx, admin, stakingAsset, stakingAsset, cfg.Staking.RewardRateBps, cfg.Staking.MinStakeDuration); err != nil {
				return fmt.Errorf("initialize staking: %w", err)
			}
			logger.Info("staking pool initialized", slog.Uint64("reward_rate_bps", cfg.Staking.RewardRateBps))
		case err != nil:
			return fmt.Errorf("read staking pool: %w", err)
		}
	}

	_, err = p.LendingPoolInfo(ctx)
	switch {
	case errors.Is(err, nativecommon.ErrPrecondition):
		l := cfg.Lending
		if err := p.InitializeLendingPool(ctx, admin, l.SupplyRateBps, l.BorrowRateBps, l.CollateralFactorBps, l.ReserveFactorBps); err != nil {
			return fmt.Errorf("initialize lending pool: %w", err)
		}
		if err := p.UpdateLiquidationParams(ctx, admin, l.LiquidationThresholdBps, l.LiquidationPenaltyBps); err != nil {
			return fmt.Errorf("set liquidation params: %w", err)
		}
		logger.Info("lending pool initialized", slog.Uint64("collateral_factor_bps", l.CollateralFactorBps))
	case err != nil:
		return fmt.Errorf("read lending pool: %w", err)
	}
	return nil
}
