package token

import (
	"math/big"
	"strings"

	"deficore/core/events"
	"deficore/core/state"
	"deficore/crypto"
	nativecommon "deficore/native/common"
)

const moduleName = "token"

// MaxDecimals bounds the display precision accepted at initialisation.
const MaxDecimals = 18

var (
	errNilState           = nativecommon.NewError(nativecommon.KindPrecondition, "token engine: state not configured")
	errAlreadyInitialized = nativecommon.NewError(nativecommon.KindPrecondition, "token engine: already initialized")
	errNotInitialized     = nativecommon.NewError(nativecommon.KindPrecondition, "token engine: not initialized")
	errInvalidDecimals    = nativecommon.NewError(nativecommon.KindValidation, "token engine: decimals out of range")
	errInvalidMetadata    = nativecommon.NewError(nativecommon.KindValidation, "token engine: name and symbol required")
	errExpiredApproval    = nativecommon.NewError(nativecommon.KindValidation, "token engine: expiration height is below the current height")
	errInsufficientAllow  = nativecommon.NewError(nativecommon.KindEconomic, "token engine: insufficient allowance")
)

var metadataKey = []byte("token/metadata")

// Metadata describes the ledger's fungible asset.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(addr crypto.Address) (*big.Int, error)
	Debit(addr crypto.Address, amount *big.Int) error
	Credit(addr crypto.Address, amount *big.Int) error
	Allowance(owner, spender crypto.Address) (*state.AllowanceRecord, error)
	SetAllowance(owner, spender crypto.Address, record *state.AllowanceRecord) error
	AdjustTotalSupply(delta *big.Int) error
}

type accessControl interface {
	HasAdmin() (bool, error)
	SetAdmin(addr crypto.Address) error
	RequireAdmin(admin crypto.Address) error
	TransferAdmin(admin, next crypto.Address) error
	EnsureNotFrozen(addr crypto.Address) error
}

// Engine implements the balance ledger surface: metadata, minting, allowances,
// transfers and burns.
type Engine struct {
	state   engineState
	access  accessControl
	auth    nativecommon.Authorizer
	clock   nativecommon.Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine constructs an unwired token engine.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccess wires the admin and frozen-flag registry.
func (e *Engine) SetAccess(access accessControl) { e.access = access }

// SetAuthorizer configures the per-call capability check.
func (e *Engine) SetAuthorizer(auth nativecommon.Authorizer) { e.auth = auth }

// SetClock configures the logical height source.
func (e *Engine) SetClock(clock nativecommon.Clock) { e.clock = clock }

// SetPauses configures the module pause table.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) height() uint64 {
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

func (e *Engine) requireAuth(addr crypto.Address) error {
	if e.auth == nil {
		return nativecommon.ErrUnauthorized
	}
	return e.auth.RequireAuth(addr)
}

func (e *Engine) emit(eventType string, actor, subject crypto.Address, amount *big.Int) {
	e.emitter.Emit(events.Notification{
		Type:    eventType,
		Height:  e.height(),
		Actor:   actor,
		Subject: subject,
		Amount:  nativecommon.Copy(amount),
	})
}

// Initialize records the asset metadata and the protocol administrator. It
// can run exactly once and must be authorized by admin.
func (e *Engine) Initialize(admin crypto.Address, decimals uint32, name, symbol string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	hasAdmin, err := e.access.HasAdmin()
	if err != nil {
		return err
	}
	if hasAdmin {
		return errAlreadyInitialized
	}
	if decimals > MaxDecimals {
		return errInvalidDecimals
	}
	name = strings.TrimSpace(name)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name == "" || symbol == "" {
		return errInvalidMetadata
	}
	if err := e.access.SetAdmin(admin); err != nil {
		return err
	}
	if err := e.state.KVPut(metadataKey, &Metadata{Name: name, Symbol: symbol, Decimals: decimals}); err != nil {
		return err
	}
	e.emit(EventTypeInitialized, admin, admin, big.NewInt(0))
	return nil
}

// Metadata returns the asset metadata.
func (e *Engine) Metadata() (*Metadata, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	meta := new(Metadata)
	ok, err := e.state.KVGet(metadataKey, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	return meta, nil
}

// Mint creates amount new units for to. Admin only.
func (e *Engine) Mint(admin, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := e.access.RequireAdmin(admin); err != nil {
		return err
	}
	if err := e.state.Credit(to, amount); err != nil {
		return err
	}
	if err := e.state.AdjustTotalSupply(amount); err != nil {
		return err
	}
	e.emit(EventTypeMinted, admin, to, amount)
	return nil
}

// SetAdmin hands the administrator role to next.
func (e *Engine) SetAdmin(admin, next crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.access.TransferAdmin(admin, next)
}

// Balance returns the account balance.
func (e *Engine) Balance(id crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.Balance(id)
}

// Allowance returns the amount spender may still move on behalf of from. An
// expired allowance reads as zero.
func (e *Engine) Allowance(from, spender crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.state.Allowance(from, spender)
	if err != nil {
		return nil, err
	}
	if record.ExpirationHeight < e.height() {
		return big.NewInt(0), nil
	}
	return nativecommon.Copy(record.Amount), nil
}

// Approve sets the allowance of spender over from's balance until
// expirationHeight. A positive amount requires a non-expired height.
func (e *Engine) Approve(from, spender crypto.Address, amount *big.Int, expirationHeight uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(from); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if amount.Sign() > 0 && expirationHeight < e.height() {
		return errExpiredApproval
	}
	record := &state.AllowanceRecord{Amount: nativecommon.Copy(amount), ExpirationHeight: expirationHeight}
	if err := e.state.SetAllowance(from, spender, record); err != nil {
		return err
	}
	e.emitter.Emit(events.Notification{
		Type:    EventTypeApproved,
		Height:  e.height(),
		Actor:   from,
		Subject: spender,
		Amount:  nativecommon.Copy(amount),
		Extra:   map[string]string{"expirationHeight": formatUint(expirationHeight)},
	})
	return nil
}

func (e *Engine) spendAllowance(from, spender crypto.Address, amount *big.Int) error {
	available, err := e.Allowance(from, spender)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return errInsufficientAllow
	}
	if amount.Sign() == 0 {
		return nil
	}
	record, err := e.state.Allowance(from, spender)
	if err != nil {
		return err
	}
	record.Amount = available.Sub(available, amount)
	return e.state.SetAllowance(from, spender, record)
}

func (e *Engine) move(from, to crypto.Address, amount *big.Int) error {
	if err := e.access.EnsureNotFrozen(from); err != nil {
		return err
	}
	if err := e.state.Debit(from, amount); err != nil {
		return err
	}
	return e.state.Credit(to, amount)
}

// Transfer moves amount from from to to.
func (e *Engine) Transfer(from, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuth(from); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := e.move(from, to, amount); err != nil {
		return err
	}
	e.emit(EventTypeTransferred, from, to, amount)
	return nil
}

// TransferFrom moves amount from from to to, consuming spender's allowance.
func (e *Engine) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuth(spender); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := e.access.EnsureNotFrozen(from); err != nil {
		return err
	}
	if err := e.spendAllowance(from, spender, amount); err != nil {
		return err
	}
	if err := e.move(from, to, amount); err != nil {
		return err
	}
	e.emit(EventTypeTransferred, from, to, amount)
	return nil
}

// Burn destroys amount of from's balance.
func (e *Engine) Burn(from crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(from); err != nil {
		return err
	}
	return e.burn(from, from, amount)
}

// BurnFrom destroys amount of from's balance, consuming spender's allowance.
func (e *Engine) BurnFrom(spender, from crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(spender); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := e.access.EnsureNotFrozen(from); err != nil {
		return err
	}
	if err := e.spendAllowance(from, spender, amount); err != nil {
		return err
	}
	return e.burn(spender, from, amount)
}

func (e *Engine) burn(actor, from crypto.Address, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := e.access.EnsureNotFrozen(from); err != nil {
		return err
	}
	if err := e.state.Debit(from, amount); err != nil {
		return err
	}
	if err := e.state.AdjustTotalSupply(new(big.Int).Neg(amount)); err != nil {
		return err
	}
	e.emit(EventTypeBurned, actor, from, amount)
	return nil
}
