package access

import (
	"math/big"

	"deficore/core/events"
	"deficore/crypto"
	nativecommon "deficore/native/common"
)

const (
	EventTypeAccountFrozen   = "access.frozen"
	EventTypeAccountUnfrozen = "access.unfrozen"
	EventTypeAdminChanged    = "access.admin_changed"
)

var (
	errNilState     = nativecommon.NewError(nativecommon.KindPrecondition, "access registry: state not configured")
	errAdminNotSet  = nativecommon.NewError(nativecommon.KindPrecondition, "access registry: administrator not set")
	errNotAdmin     = nativecommon.NewError(nativecommon.KindAuthorization, "access registry: caller is not the administrator")
	errInvalidAdmin = nativecommon.NewError(nativecommon.KindValidation, "access registry: administrator address required")
)

var (
	adminKey     = []byte("access/admin")
	frozenPrefix = []byte("access/frozen/")
)

func frozenKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), frozenPrefix...), addr.Bytes()...)
}

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry holds the protocol administrator and the per-account frozen flags.
type Registry struct {
	state   registryState
	auth    nativecommon.Authorizer
	clock   nativecommon.Clock
	emitter events.Emitter
}

// NewRegistry constructs an unwired registry.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetAuthorizer configures the capability check used for admin operations.
func (r *Registry) SetAuthorizer(auth nativecommon.Authorizer) { r.auth = auth }

// SetClock configures the height source stamped on events.
func (r *Registry) SetClock(clock nativecommon.Clock) { r.clock = clock }

// SetEmitter configures the event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Registry) height() uint64 {
	if r.clock == nil {
		return 0
	}
	return r.clock.Height()
}

// HasAdmin reports whether an administrator has been recorded.
func (r *Registry) HasAdmin() (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	return r.state.KVGet(adminKey, nil)
}

// Admin returns the recorded administrator.
func (r *Registry) Admin() (crypto.Address, error) {
	if r == nil || r.state == nil {
		return crypto.Address{}, errNilState
	}
	var raw []byte
	ok, err := r.state.KVGet(adminKey, &raw)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, errAdminNotSet
	}
	return crypto.AddressFromBytes(raw)
}

// SetAdmin records the administrator without any capability check. Callers
// are responsible for authorizing the change.
func (r *Registry) SetAdmin(addr crypto.Address) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if addr.IsZero() {
		return errInvalidAdmin
	}
	return r.state.KVPut(adminKey, addr.Bytes())
}

// RequireAdmin checks that admin is the recorded administrator and that it
// authorized the current call.
func (r *Registry) RequireAdmin(admin crypto.Address) error {
	current, err := r.Admin()
	if err != nil {
		return err
	}
	if !current.Equal(admin) {
		return errNotAdmin
	}
	if r.auth == nil {
		return nativecommon.ErrUnauthorized
	}
	return r.auth.RequireAuth(admin)
}

// TransferAdmin hands the administrator role to next.
func (r *Registry) TransferAdmin(admin, next crypto.Address) error {
	if err := r.RequireAdmin(admin); err != nil {
		return err
	}
	if err := r.SetAdmin(next); err != nil {
		return err
	}
	r.emitter.Emit(events.Notification{
		Type:    EventTypeAdminChanged,
		Height:  r.height(),
		Actor:   admin,
		Subject: next,
		Amount:  big.NewInt(0),
	})
	return nil
}

// IsFrozen reports whether the account is frozen. Absence means not frozen.
func (r *Registry) IsFrozen(addr crypto.Address) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	var frozen bool
	ok, err := r.state.KVGet(frozenKey(addr), &frozen)
	if err != nil {
		return false, err
	}
	return ok && frozen, nil
}

// EnsureNotFrozen fails with ErrAccountFrozen when the account is frozen.
func (r *Registry) EnsureNotFrozen(addr crypto.Address) error {
	frozen, err := r.IsFrozen(addr)
	if err != nil {
		return err
	}
	if frozen {
		return nativecommon.ErrAccountFrozen
	}
	return nil
}

// SetFrozen writes the frozen flag without authorization. Clearing removes the
// record entirely.
func (r *Registry) SetFrozen(addr crypto.Address, frozen bool) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if !frozen {
		return r.state.KVDelete(frozenKey(addr))
	}
	return r.state.KVPut(frozenKey(addr), true)
}

// Freeze blocks outgoing value movement for account.
func (r *Registry) Freeze(admin, account crypto.Address) error {
	return r.toggle(admin, account, true)
}

// Unfreeze clears the frozen flag for account.
func (r *Registry) Unfreeze(admin, account crypto.Address) error {
	return r.toggle(admin, account, false)
}

func (r *Registry) toggle(admin, account crypto.Address, frozen bool) error {
	if err := r.RequireAdmin(admin); err != nil {
		return err
	}
	if err := r.SetFrozen(account, frozen); err != nil {
		return err
	}
	eventType := EventTypeAccountUnfrozen
	if frozen {
		eventType = EventTypeAccountFrozen
	}
	r.emitter.Emit(events.Notification{
		Type:    eventType,
		Height:  r.height(),
		Actor:   admin,
		Subject: account,
		Amount:  big.NewInt(0),
	})
	return nil
}
