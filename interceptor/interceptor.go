package interceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tylooio/tyloo/manager"
	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

// Interceptor wraps compensable business methods. For each call it resolves
// the method role and drives the transaction manager accordingly: a root
// call owns the whole try/confirm-or-cancel cycle, a provider call enacts
// the phase named by the inbound context, and a normal call passes through.
type Interceptor struct {
	mgr *manager.TransactionManager

	delayCancelErrors   []error
	delayCancelMatchers []func(error) bool

	handler slog.Handler
	logger  *slog.Logger
}

// Option represents a functional option for configuring Interceptor.
type Option func(*Interceptor) error

// WithLogHandler sets a custom slog handler for the interceptor.
func WithLogHandler(handler slog.Handler) Option {
	return func(i *Interceptor) error {
		if handler != nil {
			i.handler = handler
		}
		return nil
	}
}

// WithDelayCancelErrors adds interceptor-wide delay-cancel errors. They are
// unioned with every Compensable's own list: a try failure matching either
// set skips immediate compensation and leaves the record for recovery.
func WithDelayCancelErrors(errs ...error) Option {
	return func(i *Interceptor) error {
		for _, err := range errs {
			if err == nil {
				return errors.New("delay-cancel error cannot be nil")
			}
		}
		i.delayCancelErrors = append(i.delayCancelErrors, errs...)
		return nil
	}
}

// WithDelayCancelMatchers adds interceptor-wide delay-cancel predicates for
// error classes that have no sentinel, such as typed errors matched with
// errors.As.
func WithDelayCancelMatchers(matchers ...func(error) bool) Option {
	return func(i *Interceptor) error {
		for _, match := range matchers {
			if match == nil {
				return errors.New("delay-cancel matcher cannot be nil")
			}
		}
		i.delayCancelMatchers = append(i.delayCancelMatchers, matchers...)
		return nil
	}
}

// New creates an interceptor driving the given transaction manager.
func New(mgr *manager.TransactionManager, opts ...Option) (*Interceptor, error) {
	if mgr == nil {
		return nil, errors.New("transaction manager cannot be nil")
	}
	i := &Interceptor{
		mgr:     mgr,
		handler: slog.Default().Handler(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	i.logger = slog.New(i.handler).WithGroup("interceptor")
	return i, nil
}

// Intercept runs fn under the transactional behavior declared by def. The
// returned value is fn's result for root, normal, and provider-trying calls;
// provider confirm/cancel calls return a zero value because the try-phase
// result was already delivered.
func (i *Interceptor) Intercept(ctx context.Context, def Compensable, fn BusinessFunc) (any, error) {
	ctx = manager.WithStack(ctx)
	mc := NewMethodContext(ctx, def, fn)

	active := i.mgr.IsTransactionActive(ctx)
	if def.Propagation == tcc.Mandatory && !active && mc.TransactionContext() == nil {
		return nil, fmt.Errorf("%w: mandatory propagation requires an existing transaction", tcc.ErrSystem)
	}

	switch mc.Role(active) {
	case RoleRoot:
		return i.rootMethodProceed(ctx, mc)
	case RoleProvider:
		return i.providerMethodProceed(ctx, mc)
	default:
		return mc.Proceed(ctx)
	}
}

// rootMethodProceed begins a root transaction, runs the try body, and turns
// its outcome into the global decision: success confirms, failure cancels
// unless the error is declared delay-cancel, in which case the record is
// left for the recovery sweep to settle.
func (i *Interceptor) rootMethodProceed(ctx context.Context, mc *MethodContext) (result any, err error) {
	def := mc.Compensable()

	root, err := i.begin(ctx, mc)
	if err != nil {
		return nil, err
	}
	defer i.clean(ctx, root, &err)

	result, tryErr := mc.Proceed(ctx)
	if tryErr != nil {
		if i.matchesDelayCancel(tryErr, def) {
			i.logger.Warn("Try failed with a delay-cancel error, leaving transaction for recovery",
				"xid", root.XID(), "error", tryErr)
			return nil, tryErr
		}
		if rbErr := i.mgr.Rollback(ctx, def.AsyncCancel); rbErr != nil {
			i.logger.Warn("Rollback failed after try error, recovery will cancel later",
				"xid", root.XID(), "error", rbErr)
		}
		return nil, tryErr
	}

	if err := i.mgr.Commit(ctx, def.AsyncConfirm); err != nil {
		return nil, err
	}
	return result, nil
}

// providerMethodProceed enacts the phase carried by the inbound context. The
// trying phase opens a branch and runs the body; confirming and cancelling
// resume the stored branch and drive its phase. A branch that already
// completed is gone from the repository, which makes repeated phase calls
// idempotent no-ops.
func (i *Interceptor) providerMethodProceed(ctx context.Context, mc *MethodContext) (result any, err error) {
	txCtx := mc.TransactionContext()
	def := mc.Compensable()

	switch txCtx.Status {
	case tcc.Trying:
		branch, beginErr := i.mgr.PropagationNewBegin(ctx, *txCtx)
		if beginErr != nil {
			return nil, beginErr
		}
		defer i.clean(ctx, branch, &err)
		return mc.Proceed(ctx)

	case tcc.Confirming:
		branch, beginErr := i.mgr.PropagationExistBegin(ctx, *txCtx)
		if errors.Is(beginErr, tcc.ErrNoExistedTransaction) {
			return nil, nil
		}
		if beginErr != nil {
			return nil, beginErr
		}
		defer i.clean(ctx, branch, &err)
		return nil, i.mgr.Commit(ctx, def.AsyncConfirm)

	case tcc.Cancelling:
		branch, beginErr := i.mgr.PropagationExistBegin(ctx, *txCtx)
		if errors.Is(beginErr, tcc.ErrNoExistedTransaction) {
			return nil, nil
		}
		if beginErr != nil {
			return nil, beginErr
		}
		defer i.clean(ctx, branch, &err)
		return nil, i.mgr.Rollback(ctx, def.AsyncCancel)

	default:
		return nil, fmt.Errorf("%w: status %d", tcc.ErrUnknownStatus, txCtx.Status)
	}
}

func (i *Interceptor) begin(ctx context.Context, mc *MethodContext) (*transaction.Transaction, error) {
	if id := mc.UniqueID(); id != "" {
		return i.mgr.BeginWithID(ctx, id)
	}
	return i.mgr.Begin(ctx)
}

// clean pops tx off the chain's stack. A cleanup failure means mis-nested
// transactions; it only replaces the outcome when the call would otherwise
// succeed.
func (i *Interceptor) clean(ctx context.Context, tx *transaction.Transaction, errp *error) {
	if cleanErr := i.mgr.CleanAfterCompletion(ctx, tx); cleanErr != nil {
		i.logger.Error("Transaction stack cleanup failed", "xid", tx.XID(), "error", cleanErr)
		if *errp == nil {
			*errp = cleanErr
		}
	}
}

// matchesDelayCancel reports whether err belongs to the delay-cancel set:
// the union of the interceptor-wide and per-Compensable sentinels and
// matchers. Sentinels match through the errors.Is chain walk.
func (i *Interceptor) matchesDelayCancel(err error, def Compensable) bool {
	for _, target := range i.delayCancelErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	for _, target := range def.DelayCancelErrors {
		if target != nil && errors.Is(err, target) {
			return true
		}
	}
	for _, match := range i.delayCancelMatchers {
		if match(err) {
			return true
		}
	}
	for _, match := range def.DelayCancelMatchers {
		if match != nil && match(err) {
			return true
		}
	}
	return false
}

// Call runs fn through the interceptor and asserts the result type. It
// returns T's zero value whenever the interceptor yields nil, which is the
// case for provider confirm/cancel phases and every error path.
func Call[T any](ctx context.Context, i *Interceptor, def Compensable, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := i.Intercept(ctx, def, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected result type %T", tcc.ErrSystem, result)
	}
	return typed, nil
}
