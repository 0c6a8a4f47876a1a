package vesting

import (
	"math/big"

	"deficore/core/events"
	"deficore/crypto"
	nativecommon "deficore/native/common"
)

const moduleName = "vesting"

const (
	EventTypeCreated = "vesting.created"
	EventTypeClaimed = "vesting.claimed"
	EventTypeRevoked = "vesting.revoked"
)

var (
	errNilState         = nativecommon.NewError(nativecommon.KindPrecondition, "vesting engine: state not configured")
	errInvalidBounds    = nativecommon.NewError(nativecommon.KindValidation, "vesting engine: end height must be after start height")
	errInvalidCliff     = nativecommon.NewError(nativecommon.KindValidation, "vesting engine: cliff height must not precede start height")
	errScheduleExists   = nativecommon.NewError(nativecommon.KindPrecondition, "vesting engine: schedule already exists for beneficiary")
	errScheduleNotFound = nativecommon.NewError(nativecommon.KindPrecondition, "vesting engine: schedule not found")
	errNothingClaimable = nativecommon.NewError(nativecommon.KindEconomic, "vesting engine: nothing claimable")
	errInsufficientFund = nativecommon.NewError(nativecommon.KindEconomic, "vesting engine: administrator balance below grant")
)

var schedulePrefix = []byte("vesting/schedule/")

func scheduleKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), schedulePrefix...), addr.Bytes()...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(addr crypto.Address) (*big.Int, error)
	Debit(addr crypto.Address, amount *big.Int) error
	Credit(addr crypto.Address, amount *big.Int) error
}

type accessControl interface {
	RequireAdmin(admin crypto.Address) error
	SetFrozen(addr crypto.Address, frozen bool) error
}

// Engine manages linear vesting grants. Granted funds are credited to the
// beneficiary up front and locked by freezing the account until the grant is
// fully claimed or revoked.
type Engine struct {
	state   engineState
	access  accessControl
	auth    nativecommon.Authorizer
	clock   nativecommon.Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine constructs an unwired vesting engine.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccess wires the admin and frozen-flag registry.
func (e *Engine) SetAccess(access accessControl) { e.access = access }

func (e *Engine) SetAuthorizer(auth nativecommon.Authorizer) { e.auth = auth }

func (e *Engine) SetClock(clock nativecommon.Clock) { e.clock = clock }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.Height()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.access == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) emit(eventType string, actor, subject crypto.Address, amount *big.Int) {
	e.emitter.Emit(events.Notification{
		Type:    eventType,
		Height:  e.now(),
		Actor:   actor,
		Subject: subject,
		Amount:  nativecommon.Copy(amount),
	})
}

func (e *Engine) load(beneficiary crypto.Address) (*Schedule, error) {
	stored := new(storedSchedule)
	ok, err := e.state.KVGet(scheduleKey(beneficiary), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return stored.toSchedule()
}

func (e *Engine) store(s *Schedule) error {
	return e.state.KVPut(scheduleKey(s.Beneficiary), newStoredSchedule(s))
}

// Create grants total to beneficiary, unlocking linearly between start and end
// with an optional cliff. The admin's balance funds the grant immediately and
// the beneficiary is frozen until the grant completes.
func (e *Engine) Create(admin, beneficiary crypto.Address, total *big.Int, start, cliff, end uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(total); err != nil {
		return err
	}
	if end <= start {
		return errInvalidBounds
	}
	if cliff > 0 && cliff < start {
		return errInvalidCliff
	}
	existing, err := e.load(beneficiary)
	if err != nil {
		return err
	}
	if existing != nil {
		return errScheduleExists
	}
	balance, err := e.state.Balance(admin)
	if err != nil {
		return err
	}
	if balance.Cmp(total) < 0 {
		return errInsufficientFund
	}
	schedule := &Schedule{
		Beneficiary: beneficiary,
		Total:       nativecommon.Copy(total),
		Claimed:     big.NewInt(0),
		Start:       start,
		Cliff:       cliff,
		End:         end,
	}
	if err := e.store(schedule); err != nil {
		return err
	}
	if err := e.state.Debit(admin, total); err != nil {
		return err
	}
	if err := e.state.Credit(beneficiary, total); err != nil {
		return err
	}
	if err := e.access.SetFrozen(beneficiary, true); err != nil {
		return err
	}
	e.emit(EventTypeCreated, admin, beneficiary, total)
	return nil
}

// Claimable returns the amount the beneficiary could claim at the current
// height. It never fails for a missing schedule.
func (e *Engine) Claimable(beneficiary crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	schedule, err := e.load(beneficiary)
	if err != nil {
		return nil, err
	}
	return claimableAt(schedule, e.now()), nil
}

func claimableAt(s *Schedule, now uint64) *big.Int {
	if s == nil || now < s.Start {
		return big.NewInt(0)
	}
	if s.Cliff > 0 && now < s.Cliff {
		return big.NewInt(0)
	}
	if now >= s.End {
		return s.Remaining()
	}
	elapsed := new(big.Int).SetUint64(now - s.Start)
	duration := new(big.Int).SetUint64(s.End - s.Start)
	vested := nativecommon.MulDiv(s.Total, elapsed, duration)
	return nativecommon.SubFloor(vested, s.Claimed)
}

// Claim records the currently claimable amount as released. Completing the
// grant removes the schedule and unfreezes the beneficiary.
func (e *Engine) Claim(beneficiary crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.auth == nil {
		return nil, nativecommon.ErrUnauthorized
	}
	if err := e.auth.RequireAuth(beneficiary); err != nil {
		return nil, err
	}
	schedule, err := e.load(beneficiary)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, errScheduleNotFound
	}
	amount := claimableAt(schedule, e.now())
	if amount.Sign() <= 0 {
		return nil, errNothingClaimable
	}
	schedule.Claimed = new(big.Int).Add(schedule.Claimed, amount)
	if schedule.Claimed.Cmp(schedule.Total) >= 0 {
		if err := e.state.KVDelete(scheduleKey(beneficiary)); err != nil {
			return nil, err
		}
		if err := e.access.SetFrozen(beneficiary, false); err != nil {
			return nil, err
		}
	} else if err := e.store(schedule); err != nil {
		return nil, err
	}
	e.emit(EventTypeClaimed, beneficiary, beneficiary, amount)
	return amount, nil
}

// Revoke cancels the grant, returning the unclaimed remainder from the
// beneficiary to the admin.
func (e *Engine) Revoke(admin, beneficiary crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return nil, err
	}
	schedule, err := e.load(beneficiary)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, errScheduleNotFound
	}
	remaining := schedule.Remaining()
	if remaining.Sign() > 0 {
		if err := e.state.Debit(beneficiary, remaining); err != nil {
			return nil, err
		}
		if err := e.state.Credit(admin, remaining); err != nil {
			return nil, err
		}
	}
	if err := e.state.KVDelete(scheduleKey(beneficiary)); err != nil {
		return nil, err
	}
	if err := e.access.SetFrozen(beneficiary, false); err != nil {
		return nil, err
	}
	e.emit(EventTypeRevoked, admin, beneficiary, remaining)
	return remaining, nil
}

// Info returns the beneficiary's schedule, or nil when none exists.
func (e *Engine) Info(beneficiary crypto.Address) (*Schedule, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.load(beneficiary)
}
