package common

import "deficore/crypto"

// Authorizer decides whether an account has authorized the current call.
type Authorizer interface {
	RequireAuth(addr crypto.Address) error
}

// Clock exposes the host's logical height.
type Clock interface {
	Height() uint64
}

// CallerAuthorizer authorizes exactly one account: the caller bound by the
// host for the duration of a call.
type CallerAuthorizer struct {
	caller crypto.Address
}

// Bind sets the authorized caller.
func (a *CallerAuthorizer) Bind(caller crypto.Address) { a.caller = caller }

// Caller returns the currently bound caller.
func (a *CallerAuthorizer) Caller() crypto.Address { return a.caller }

func (a *CallerAuthorizer) RequireAuth(addr crypto.Address) error {
	if a == nil || a.caller.IsZero() || !a.caller.Equal(addr) {
		return ErrUnauthorized
	}
	return nil
}

// FixedClock is a settable Clock.
type FixedClock struct {
	height uint64
}

func NewFixedClock(height uint64) *FixedClock { return &FixedClock{height: height} }

func (c *FixedClock) Height() uint64 { return c.height }

func (c *FixedClock) Set(height uint64) { c.height = height }
