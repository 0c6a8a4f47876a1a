package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deficore/core/events"
	"deficore/core/state"
	"deficore/crypto"
	"deficore/native/access"
	nativecommon "deficore/native/common"
	"deficore/native/lending"
	"deficore/native/staking"
	"deficore/native/token"
	"deficore/native/vesting"
	"deficore/storage"
	"deficore/storage/trie"
)

var (
	headRootKey   = []byte("deficore/head/root")
	headHeightKey = []byte("deficore/head/height")
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
)

// PoolGauges is a point-in-time view of the pooled balances, published after
// every committed call.
type PoolGauges struct {
	LendingSupplied    *big.Int
	LendingBorrowed    *big.Int
	LendingUtilization uint64
	TotalStaked        *big.Int
}

// Observer receives per-call measurements.
type Observer interface {
	ObserveCall(operation, outcome string, elapsed time.Duration)
	ObservePools(gauges PoolGauges)
}

// Options configures a Protocol. Every field is optional.
type Options struct {
	Pauses    nativecommon.PauseView
	Sink      events.Emitter
	Observer  Observer
	Tracer    trace.Tracer
	Logger    *slog.Logger
	RateModel *lending.JumpRateModel
}

// Protocol hosts the engines over one state trie. Calls are serialised; each
// mutating call either commits in full and publishes its events, or leaves the
// committed state untouched and publishes nothing.
type Protocol struct {
	mu       sync.Mutex
	db       storage.Database
	trie     *trie.Trie
	state    *state.Manager
	clock    *Clock
	auth     *nativecommon.CallerAuthorizer
	buffer   *events.Buffer
	sink     events.Emitter
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger

	access  *access.Registry
	token   *token.Engine
	vesting *vesting.Engine
	staking *staking.Engine
	lending *lending.Engine
}

// NewProtocol opens the state at the persisted head, or at the empty root for
// a fresh database.
func NewProtocol(db storage.Database, opts Options) (*Protocol, error) {
	if db == nil {
		return nil, fmt.Errorf("protocol: database required")
	}
	root, height, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("protocol: open state: %w", err)
	}
	p := &Protocol{
		db:       db,
		trie:     tr,
		state:    state.NewManager(tr),
		clock:    NewClock(height),
		auth:     &nativecommon.CallerAuthorizer{},
		buffer:   &events.Buffer{},
		sink:     opts.Sink,
		observer: opts.Observer,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
	}
	if p.sink == nil {
		p.sink = events.NoopEmitter{}
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("deficore/core")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	p.access = access.NewRegistry()
	p.access.SetState(p.state)
	p.access.SetAuthorizer(p.auth)
	p.access.SetClock(p.clock)
	p.access.SetEmitter(p.buffer)

	p.token = token.NewEngine()
	p.token.SetState(p.state)
	p.token.SetAccess(p.access)
	p.token.SetAuthorizer(p.auth)
	p.token.SetClock(p.clock)
	p.token.SetPauses(opts.Pauses)
	p.token.SetEmitter(p.buffer)

	p.vesting = vesting.NewEngine()
	p.vesting.SetState(p.state)
	p.vesting.SetAccess(p.access)
	p.vesting.SetAuthorizer(p.auth)
	p.vesting.SetClock(p.clock)
	p.vesting.SetPauses(opts.Pauses)
	p.vesting.SetEmitter(p.buffer)

	p.staking = staking.NewEngine()
	p.staking.SetState(p.state)
	p.staking.SetAuthorizer(p.auth)
	p.staking.SetClock(p.clock)
	p.staking.SetPauses(opts.Pauses)
	p.staking.SetEmitter(p.buffer)

	p.lending = lending.NewEngine()
	p.lending.SetState(p.state)
	p.lending.SetAccess(p.access)
	p.lending.SetAuthorizer(p.auth)
	p.lending.SetClock(p.clock)
	p.lending.SetPauses(opts.Pauses)
	p.lending.SetEmitter(p.buffer)
	if opts.RateModel != nil {
		p.lending.SetRateModel(*opts.RateModel)
	}
	return p, nil
}

func loadHead(db storage.Database) ([]byte, uint64, error) {
	var root []byte
	ok, err := db.Has(headRootKey)
	if err != nil {
		return nil, 0, fmt.Errorf("protocol: read head: %w", err)
	}
	if ok {
		if root, err = db.Get(headRootKey); err != nil {
			return nil, 0, fmt.Errorf("protocol: read head root: %w", err)
		}
	}
	var height uint64
	ok, err = db.Has(headHeightKey)
	if err != nil {
		return nil, 0, fmt.Errorf("protocol: read head: %w", err)
	}
	if ok {
		raw, err := db.Get(headHeightKey)
		if err != nil {
			return nil, 0, fmt.Errorf("protocol: read head height: %w", err)
		}
		if len(raw) != 8 {
			return nil, 0, fmt.Errorf("protocol: corrupt head height")
		}
		height = binary.BigEndian.Uint64(raw)
	}
	return root, height, nil
}

// Height returns the current logical height.
func (p *Protocol) Height() uint64 { return p.clock.Height() }

// Root returns the last committed state root.
func (p *Protocol) Root() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trie.Root()
}

// AdvanceHeight moves the logical clock forward and persists the new height.
func (p *Protocol) AdvanceHeight(height uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.clock.Advance(height); err != nil {
		return err
	}
	return p.persistHeight()
}

// Tick advances the logical clock by one height.
func (p *Protocol) Tick() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	height, err := p.clock.Tick()
	if err != nil {
		return height, err
	}
	return height, p.persistHeight()
}

func (p *Protocol) persistHeight() error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], p.clock.Height())
	return p.db.Put(headHeightKey, raw[:])
}

// execute runs fn as one atomic call on behalf of caller.
func (p *Protocol) execute(ctx context.Context, operation string, caller crypto.Address, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(ctx, "protocol."+operation, trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.Int64("height", int64(p.clock.Height())),
	))
	defer span.End()
	started := time.Now()

	p.auth.Bind(caller)
	defer p.auth.Bind(crypto.Address{})
	p.buffer.Reset()

	if err := fn(); err != nil {
		if rollbackErr := p.rollback(); rollbackErr != nil {
			err = errors.Join(err, rollbackErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.observe(operation, OutcomeRejected, started)
		p.logger.Debug("protocol call rejected",
			slog.String("operation", operation),
			slog.String("caller", caller.String()),
			slog.String("kind", nativecommon.KindOf(err).String()),
			slog.String("error", err.Error()))
		return err
	}
	if err := p.commit(); err != nil {
		if rollbackErr := p.rollback(); rollbackErr != nil {
			err = errors.Join(err, rollbackErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("protocol commit failed", slog.String("operation", operation), slog.String("error", err.Error()))
		return err
	}
	p.observe(operation, OutcomeOK, started)
	return nil
}

// view runs a read-only query under the call lock.
func (p *Protocol) view(ctx context.Context, operation string, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, span := p.tracer.Start(ctx, "protocol."+operation)
	defer span.End()
	if err := fn(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *Protocol) rollback() error {
	p.buffer.Reset()
	if err := p.trie.Reset(p.trie.Root()); err != nil {
		return fmt.Errorf("protocol: rollback: %w", err)
	}
	return nil
}

func (p *Protocol) commit() error {
	root, err := p.trie.Commit(p.trie.Root(), p.clock.Height())
	if err != nil {
		return fmt.Errorf("protocol: commit: %w", err)
	}
	if err := p.db.Put(headRootKey, root.Bytes()); err != nil {
		return fmt.Errorf("protocol: persist head: %w", err)
	}
	for _, ev := range p.buffer.Drain() {
		p.sink.Emit(ev)
	}
	if p.observer != nil {
		p.observer.ObservePools(p.gauges())
	}
	return nil
}

func (p *Protocol) observe(operation, outcome string, started time.Time) {
	if p.observer == nil {
		return
	}
	p.observer.ObserveCall(operation, outcome, time.Since(started))
}

// gauges reads pool totals; uninitialised pools report zero.
func (p *Protocol) gauges() PoolGauges {
	g := PoolGauges{
		LendingSupplied: big.NewInt(0),
		LendingBorrowed: big.NewInt(0),
		TotalStaked:     big.NewInt(0),
	}
	if pool, err := p.lending.PoolInfo(); err == nil {
		g.LendingSupplied = pool.TotalSupplied
		g.LendingBorrowed = pool.TotalBorrowed
		g.LendingUtilization = pool.UtilizationRate
	}
	if pool, err := p.staking.PoolInfo(); err == nil {
		g.TotalStaked = pool.TotalStaked
	}
	return g
}

// Balance reads an account balance outside of any call.
func (p *Protocol) Balance(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := p.view(ctx, "balance", func() (err error) {
		out, err = p.state.Balance(addr)
		return err
	})
	return out, err
}

// StakingVault and LendingVault expose the module accounts.
func (p *Protocol) StakingVault() crypto.Address { return p.staking.VaultAddress() }

func (p *Protocol) LendingVault() crypto.Address { return p.lending.VaultAddress() }

func invoke[T any](ctx context.Context, p *Protocol, operation string, caller crypto.Address, fn func() (T, error)) (T, error) {
	var out T
	err := p.execute(ctx, operation, caller, func() error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func query[T any](ctx context.Context, p *Protocol, operation string, fn func() (T, error)) (T, error) {
	var out T
	err := p.view(ctx, operation, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// adminQuery is a read that authenticates caller. Nothing is committed and no
// events are published.
func adminQuery[T any](ctx context.Context, p *Protocol, operation string, caller crypto.Address, fn func() (T, error)) (T, error) {
	var out T
	err := p.view(ctx, operation, func() error {
		p.auth.Bind(caller)
		defer p.auth.Bind(crypto.Address{})
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
