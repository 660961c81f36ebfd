package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylooio/tyloo/manager"
	"github.com/tylooio/tyloo/repository"
	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

func testHandler(t *testing.T) slog.Handler {
	t.Helper()
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
}

type fixture struct {
	repo *repository.Memory
	mgr  *manager.TransactionManager
	icpt *Interceptor

	confirms []string
	cancels  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{repo: repository.NewMemory(testHandler(t))}

	mgr, err := manager.New(f.repo, manager.WithLogHandler(testHandler(t)))
	require.NoError(t, err)
	f.mgr = mgr

	icpt, err := New(mgr, WithLogHandler(testHandler(t)))
	require.NoError(t, err)
	f.icpt = icpt
	return f
}

// registerHandlers registers recording confirm/cancel handlers for name.
func (f *fixture) registerHandlers(t *testing.T, name string) {
	t.Helper()

	require.NoError(t, f.mgr.Invoker().Register(name, "confirm",
		func(ctx context.Context, txCtx tcc.Context, args json.RawMessage) error {
			f.confirms = append(f.confirms, name)
			return nil
		}))
	require.NoError(t, f.mgr.Invoker().Register(name, "cancel",
		func(ctx context.Context, txCtx tcc.Context, args json.RawMessage) error {
			f.cancels = append(f.cancels, name)
			return nil
		}))
}

// enlist registers handlers for name and enlists a participant descriptor
// into the chain's current transaction. Call it from inside a business
// body.
func (f *fixture) enlist(t *testing.T, ctx context.Context, name string) {
	t.Helper()

	f.registerHandlers(t, name)
	tx := f.mgr.CurrentTransaction(ctx)
	require.NotNil(t, tx)

	confirm, err := transaction.NewInvocation(name, "confirm", nil)
	require.NoError(t, err)
	cancel, err := transaction.NewInvocation(name, "cancel", nil)
	require.NoError(t, err)
	p := transaction.NewParticipant(tx.XID(), tx.BranchID(), confirm, cancel)
	require.NoError(t, f.mgr.EnlistParticipant(ctx, p))
}

func TestRootHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var xid uuid.UUID

	result, err := f.icpt.Intercept(t.Context(), Compensable{}, func(ctx context.Context) (any, error) {
		tx := f.mgr.CurrentTransaction(ctx)
		require.NotNil(t, tx)
		require.Equal(t, tcc.Root, tx.Type())
		require.Equal(t, tcc.Trying, tx.Status())
		xid = tx.XID()

		f.enlist(t, ctx, "account")
		return "transferred", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "transferred", result)

	assert.Equal(t, []string{"account"}, f.confirms)
	assert.Empty(t, f.cancels)

	_, err = f.repo.FindByXID(t.Context(), xid)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRootFailureCancelsImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var xid uuid.UUID
	tryErr := errors.New("insufficient funds")

	_, err := f.icpt.Intercept(t.Context(), Compensable{}, func(ctx context.Context) (any, error) {
		xid = f.mgr.CurrentTransaction(ctx).XID()
		f.enlist(t, ctx, "account")
		return nil, tryErr
	})
	require.ErrorIs(t, err, tryErr)

	assert.Equal(t, []string{"account"}, f.cancels)
	assert.Empty(t, f.confirms)

	_, err = f.repo.FindByXID(t.Context(), xid)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRootDelayCancelLeavesRecordForRecovery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var xid uuid.UUID

	def := Compensable{DelayCancelErrors: []error{tcc.ErrOptimisticLock}}
	_, err := f.icpt.Intercept(t.Context(), def, func(ctx context.Context) (any, error) {
		xid = f.mgr.CurrentTransaction(ctx).XID()
		f.enlist(t, ctx, "account")
		// Wrapped causes match too.
		return nil, wrapConflict(tcc.ErrOptimisticLock)
	})
	require.ErrorIs(t, err, tcc.ErrOptimisticLock)

	// No compensation ran; the record stays trying so a recovery pass can
	// settle it once the contention clears.
	assert.Empty(t, f.cancels)
	assert.Empty(t, f.confirms)

	stored, err := f.repo.FindByXID(t.Context(), xid)
	require.NoError(t, err)
	assert.Equal(t, tcc.Trying, stored.Status())
}

func wrapConflict(err error) error {
	return errors.Join(errors.New("update conflict"), err)
}

func TestRootDelayCancelFromInterceptorWideSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	icpt, err := New(f.mgr,
		WithLogHandler(testHandler(t)),
		WithDelayCancelErrors(tcc.ErrOptimisticLock))
	require.NoError(t, err)

	var xid uuid.UUID

	// The Compensable declares no delay errors of its own; the
	// interceptor-wide set alone must defer cancellation.
	_, err = icpt.Intercept(t.Context(), Compensable{}, func(ctx context.Context) (any, error) {
		xid = f.mgr.CurrentTransaction(ctx).XID()
		f.enlist(t, ctx, "account")
		return nil, wrapConflict(tcc.ErrOptimisticLock)
	})
	require.ErrorIs(t, err, tcc.ErrOptimisticLock)

	assert.Empty(t, f.cancels)
	assert.Empty(t, f.confirms)

	stored, err := f.repo.FindByXID(t.Context(), xid)
	require.NoError(t, err)
	assert.Equal(t, tcc.Trying, stored.Status())
}

type contentionError struct {
	resource string
}

func (e *contentionError) Error() string {
	return "contention on " + e.resource
}

func TestRootDelayCancelTypedMatcher(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var xid uuid.UUID

	// A typed error with no sentinel is matched through a predicate.
	def := Compensable{
		DelayCancelMatchers: []func(error) bool{
			func(err error) bool {
				var target *contentionError
				return errors.As(err, &target)
			},
		},
	}
	_, err := f.icpt.Intercept(t.Context(), def, func(ctx context.Context) (any, error) {
		xid = f.mgr.CurrentTransaction(ctx).XID()
		f.enlist(t, ctx, "account")
		return nil, fmt.Errorf("try failed: %w", &contentionError{resource: "row 12"})
	})
	require.Error(t, err)

	assert.Empty(t, f.cancels)
	stored, err := f.repo.FindByXID(t.Context(), xid)
	require.NoError(t, err)
	assert.Equal(t, tcc.Trying, stored.Status())
}

func TestDelayCancelOptionValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(f.mgr, WithDelayCancelErrors(nil))
	assert.Error(t, err)

	_, err = New(f.mgr, WithDelayCancelMatchers(nil))
	assert.Error(t, err)
}

func TestProviderTrying(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	xid := uuid.Must(uuid.NewV6())
	branchID := uuid.Must(uuid.NewV6())

	ctx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Trying))
	result, err := f.icpt.Intercept(ctx, Compensable{}, func(ctx context.Context) (any, error) {
		tx := f.mgr.CurrentTransaction(ctx)
		require.NotNil(t, tx)
		require.Equal(t, tcc.Branch, tx.Type())
		require.Equal(t, xid, tx.XID())
		require.Equal(t, branchID, tx.BranchID())

		f.enlist(t, ctx, "inventory")
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result)

	// The branch record waits for the root's phase decision.
	stored, err := f.repo.FindByXID(t.Context(), xid)
	require.NoError(t, err)
	assert.Equal(t, tcc.Trying, stored.Status())
	assert.Empty(t, f.confirms)
	assert.Empty(t, f.cancels)
}

func TestProviderConfirming(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	xid := uuid.Must(uuid.NewV6())
	branchID := uuid.Must(uuid.NewV6())

	tryCtx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Trying))
	_, err := f.icpt.Intercept(tryCtx, Compensable{}, func(ctx context.Context) (any, error) {
		f.enlist(t, ctx, "inventory")
		return 7, nil
	})
	require.NoError(t, err)

	confirmCtx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Confirming))
	result, err := Call[int](confirmCtx, f.icpt, Compensable{}, func(ctx context.Context) (int, error) {
		t.Fatal("business body must not run during the confirm phase")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Zero(t, result)

	assert.Equal(t, []string{"inventory"}, f.confirms)
	_, err = f.repo.FindByXID(t.Context(), xid)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProviderConfirmingDoubleDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.registerHandlers(t, "inventory")
	xid := uuid.Must(uuid.NewV6())
	branchID := uuid.Must(uuid.NewV6())

	// No branch record exists: the prior delivery already confirmed and
	// deleted it. The repeat is a silent no-op.
	confirmCtx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Confirming))
	result, err := Call[int](confirmCtx, f.icpt, Compensable{}, func(ctx context.Context) (int, error) {
		t.Fatal("business body must not run during the confirm phase")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Zero(t, result)
	assert.Empty(t, f.confirms)
}

func TestProviderCancelling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	xid := uuid.Must(uuid.NewV6())
	branchID := uuid.Must(uuid.NewV6())

	tryCtx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Trying))
	_, err := f.icpt.Intercept(tryCtx, Compensable{}, func(ctx context.Context) (any, error) {
		f.enlist(t, ctx, "inventory")
		return 7, nil
	})
	require.NoError(t, err)

	cancelCtx := tcc.NewIncomingContext(t.Context(), tcc.NewContext(xid, branchID, tcc.Cancelling))
	result, err := f.icpt.Intercept(cancelCtx, Compensable{}, func(ctx context.Context) (any, error) {
		t.Fatal("business body must not run during the cancel phase")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, result)

	assert.Equal(t, []string{"inventory"}, f.cancels)
	assert.Empty(t, f.confirms)
	_, err = f.repo.FindByXID(t.Context(), xid)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMandatoryWithoutTransactionFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.icpt.Intercept(t.Context(), Compensable{Propagation: tcc.Mandatory}, func(ctx context.Context) (any, error) {
		t.Fatal("business body must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, tcc.ErrSystem)
}

func TestNestedCallIsNormalRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result, err := f.icpt.Intercept(t.Context(), Compensable{}, func(ctx context.Context) (any, error) {
		outer := f.mgr.CurrentTransaction(ctx)

		// A required call inside an active transaction passes through
		// without opening another transaction.
		inner, err := f.icpt.Intercept(ctx, Compensable{}, func(ctx context.Context) (any, error) {
			assert.Same(t, outer, f.mgr.CurrentTransaction(ctx))
			return "nested", nil
		})
		require.NoError(t, err)
		return inner, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "nested", result)
}

func TestRequiresNewOpensSecondRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var outerXID, innerXID uuid.UUID

	_, err := f.icpt.Intercept(t.Context(), Compensable{}, func(ctx context.Context) (any, error) {
		outer := f.mgr.CurrentTransaction(ctx)
		outerXID = outer.XID()

		_, err := f.icpt.Intercept(ctx, Compensable{Propagation: tcc.RequiresNew}, func(ctx context.Context) (any, error) {
			inner := f.mgr.CurrentTransaction(ctx)
			innerXID = inner.XID()
			require.Equal(t, tcc.Root, inner.Type())
			return nil, nil
		})
		require.NoError(t, err)

		// The inner root popped itself; the outer transaction is current
		// again.
		assert.Same(t, outer, f.mgr.CurrentTransaction(ctx))
		return nil, nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, outerXID, innerXID)
}

func TestRoleResolution(t *testing.T) {
	t.Parallel()

	inbound := tcc.NewIncomingContext(t.Context(), tcc.NewContext(
		uuid.Must(uuid.NewV6()), uuid.Must(uuid.NewV6()), tcc.Trying))

	tests := []struct {
		name        string
		ctx         context.Context
		propagation tcc.Propagation
		active      bool
		want        Role
	}{
		{"required fresh call", t.Context(), tcc.Required, false, RoleRoot},
		{"required with inbound ctx", inbound, tcc.Required, false, RoleProvider},
		{"required inside active tx", t.Context(), tcc.Required, true, RoleNormal},
		{"mandatory with inbound ctx", inbound, tcc.Mandatory, false, RoleProvider},
		{"mandatory inside active tx", t.Context(), tcc.Mandatory, true, RoleNormal},
		{"requires-new always roots", inbound, tcc.RequiresNew, false, RoleRoot},
		{"requires-new inside active tx", t.Context(), tcc.RequiresNew, true, RoleRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mc := NewMethodContext(tt.ctx, Compensable{Propagation: tt.propagation}, nil)
			assert.Equal(t, tt.want, mc.Role(tt.active))
		})
	}
}

func TestCallTypedResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := Call[int](t.Context(), f.icpt, Compensable{}, func(ctx context.Context) (int, error) {
		return 3, nil
	})
	require.NoError(t, err)

	_, err = Call[string](t.Context(), f.icpt, Compensable{}, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
}
