// Package interceptor orchestrates compensable method invocations: it
// resolves the method role from propagation, transaction state, and inbound
// context, then drives the transaction manager through the try phase and
// the commit or rollback decision.
package interceptor

import (
	"context"

	"github.com/tylooio/tyloo/tcc"
)

// Compensable declares a business method's transactional behavior. It is
// the Go surface of the per-method annotation: which propagation policy
// applies, whether the phases run deferred, and which errors defer
// cancellation to the recovery sweep instead of compensating immediately.
type Compensable struct {
	// Propagation controls how the call relates to an ambient transaction.
	Propagation tcc.Propagation

	// AsyncConfirm runs the confirm phase on the bounded executor.
	AsyncConfirm bool

	// AsyncCancel runs the cancel phase on the bounded executor.
	AsyncCancel bool

	// DelayCancelErrors lists errors that do NOT trigger immediate
	// compensation when the try body fails. Matching walks the error chain
	// with errors.Is, so a wrapped cause matches too. Unioned with the
	// interceptor-wide set from WithDelayCancelErrors.
	DelayCancelErrors []error

	// DelayCancelMatchers are predicates for delay-cancel error classes
	// that have no sentinel, such as typed errors matched with errors.As.
	DelayCancelMatchers []func(error) bool

	// UniqueID optionally seeds a stable transaction identity so client
	// retries of the same logical operation collide instead of
	// double-processing. Empty means a generated xid.
	UniqueID string
}

// BusinessFunc is the intercepted try-phase body.
type BusinessFunc func(ctx context.Context) (any, error)

// Role is the part a compensable invocation plays in the global
// transaction.
type Role int

const (
	// RoleNormal runs inside an existing transaction; the interceptor
	// passes the call through.
	RoleNormal Role = iota
	// RoleRoot opens a new root transaction and owns the commit/rollback
	// decision.
	RoleRoot
	// RoleProvider attaches to an inbound context as a branch.
	RoleProvider
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleProvider:
		return "provider"
	default:
		return "normal"
	}
}

// MethodContext carries everything the interceptor knows about one
// invocation: its declaration, the inbound transaction context extracted by
// the transport (if any), and the wrapped business body.
type MethodContext struct {
	def     Compensable
	inbound *tcc.Context
	fn      BusinessFunc
}

// NewMethodContext builds a method context, pulling the inbound transaction
// context off the request context where the transport placed it.
func NewMethodContext(ctx context.Context, def Compensable, fn BusinessFunc) *MethodContext {
	mc := &MethodContext{def: def, fn: fn}
	if inbound, ok := tcc.FromIncomingContext(ctx); ok {
		mc.inbound = &inbound
	}
	return mc
}

// Compensable returns the invocation's declaration.
func (mc *MethodContext) Compensable() Compensable { return mc.def }

// TransactionContext returns the inbound context, or nil for a local call.
func (mc *MethodContext) TransactionContext() *tcc.Context { return mc.inbound }

// UniqueID resolves the idempotence key for a root begin.
func (mc *MethodContext) UniqueID() string { return mc.def.UniqueID }

// Proceed invokes the wrapped business body.
func (mc *MethodContext) Proceed(ctx context.Context) (any, error) {
	return mc.fn(ctx)
}

// Role resolves the method role from the propagation policy, whether a
// transaction is already active on this chain, and whether an inbound
// context is present.
func (mc *MethodContext) Role(active bool) Role {
	hasCtx := mc.inbound != nil
	switch {
	case mc.def.Propagation == tcc.RequiresNew:
		return RoleRoot
	case mc.def.Propagation == tcc.Required && !active && !hasCtx:
		return RoleRoot
	case (mc.def.Propagation == tcc.Required || mc.def.Propagation == tcc.Mandatory) && !active && hasCtx:
		return RoleProvider
	default:
		return RoleNormal
	}
}
