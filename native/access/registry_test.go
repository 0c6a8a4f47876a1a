package access

import (
	"errors"
	"testing"

	"deficore/core/events"
	"deficore/core/state"
	"deficore/crypto"
	nativecommon "deficore/native/common"
	"deficore/storage"
	"deficore/storage/trie"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

func newRegistry(t *testing.T) (*Registry, *nativecommon.CallerAuthorizer, *events.Buffer) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	auth := &nativecommon.CallerAuthorizer{}
	buf := &events.Buffer{}
	reg := NewRegistry()
	reg.SetState(state.NewManager(tr))
	reg.SetAuthorizer(auth)
	reg.SetClock(nativecommon.NewFixedClock(10))
	reg.SetEmitter(buf)
	return reg, auth, buf
}

func TestFreezeRequiresAdmin(t *testing.T) {
	reg, auth, buf := newRegistry(t)
	admin, user, mallory := addr(1), addr(2), addr(3)

	if _, err := reg.Admin(); !errors.Is(err, errAdminNotSet) {
		t.Fatalf("expected admin not set, got %v", err)
	}
	if err := reg.SetAdmin(admin); err != nil {
		t.Fatalf("set admin: %v", err)
	}

	auth.Bind(mallory)
	if err := reg.Freeze(mallory, user); !errors.Is(err, nativecommon.ErrAuthorization) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
	// Naming the admin without being the caller is still rejected.
	if err := reg.Freeze(admin, user); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	auth.Bind(admin)
	if err := reg.Freeze(admin, user); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	frozen, err := reg.IsFrozen(user)
	if err != nil || !frozen {
		t.Fatalf("expected frozen, got %v %v", frozen, err)
	}
	if err := reg.EnsureNotFrozen(user); !errors.Is(err, nativecommon.ErrAccountFrozen) {
		t.Fatalf("expected frozen error, got %v", err)
	}

	if err := reg.Unfreeze(admin, user); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if err := reg.EnsureNotFrozen(user); err != nil {
		t.Fatalf("expected unfrozen, got %v", err)
	}

	emitted := buf.Drain()
	if len(emitted) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitted))
	}
	if emitted[0].EventType() != EventTypeAccountFrozen || emitted[1].EventType() != EventTypeAccountUnfrozen {
		t.Fatalf("unexpected event order: %s, %s", emitted[0].EventType(), emitted[1].EventType())
	}
	note := emitted[0].(events.Notification)
	if !note.Subject.Equal(user) || note.Height != 10 || note.Amount.Sign() != 0 {
		t.Fatalf("unexpected notification: %+v", note)
	}
}

func TestTransferAdmin(t *testing.T) {
	reg, auth, _ := newRegistry(t)
	admin, next := addr(1), addr(2)
	if err := reg.SetAdmin(admin); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	auth.Bind(admin)
	if err := reg.TransferAdmin(admin, next); err != nil {
		t.Fatalf("transfer admin: %v", err)
	}
	current, err := reg.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if !current.Equal(next) {
		t.Fatalf("expected %s, got %s", next, current)
	}
	if err := reg.RequireAdmin(admin); !errors.Is(err, errNotAdmin) {
		t.Fatalf("previous admin should be rejected, got %v", err)
	}
}
