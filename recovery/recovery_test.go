package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylooio/tyloo/repository"
	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

func testHandler(t *testing.T) slog.Handler {
	t.Helper()
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
}

type fixture struct {
	repo    *repository.Memory
	invoker *transaction.Invoker

	confirms int
	cancels  int

	confirmErr error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:    repository.NewMemory(testHandler(t)),
		invoker: transaction.NewInvoker(),
	}
	require.NoError(t, f.invoker.Register("stock", "confirm",
		func(ctx context.Context, txCtx tcc.Context, args json.RawMessage) error {
			f.confirms++
			return f.confirmErr
		}))
	require.NoError(t, f.invoker.Register("stock", "cancel",
		func(ctx context.Context, txCtx tcc.Context, args json.RawMessage) error {
			f.cancels++
			return nil
		}))
	return f
}

// seed persists a transaction with one enlisted participant in the given
// status.
func (f *fixture) seed(t *testing.T, status tcc.Status, branch bool, retries int) *transaction.Transaction {
	t.Helper()

	var tx *transaction.Transaction
	var err error
	if branch {
		txCtx := tcc.NewContext(uuid.Must(uuid.NewV6()), uuid.Must(uuid.NewV6()), tcc.Trying)
		tx, err = transaction.NewBranch(txCtx, testHandler(t))
	} else {
		tx, err = transaction.NewRoot(testHandler(t))
	}
	require.NoError(t, err)

	confirm, err := transaction.NewInvocation("stock", "confirm", nil)
	require.NoError(t, err)
	cancel, err := transaction.NewInvocation("stock", "cancel", nil)
	require.NoError(t, err)
	tx.Enlist(transaction.NewParticipant(tx.XID(), tx.BranchID(), confirm, cancel))

	if status != tcc.Trying {
		require.NoError(t, tx.ChangeStatus(status))
	}
	for range retries {
		tx.IncrementRetriedCount()
	}
	require.NoError(t, f.repo.Create(t.Context(), tx))
	return tx
}

// futureClock makes every seeded record look stalled.
func futureClock() func() time.Time {
	return func() time.Time { return time.Now().Add(time.Hour) }
}

func newRecovery(t *testing.T, f *fixture, opts ...Option) *Recovery {
	t.Helper()

	opts = append([]Option{
		WithLogHandler(testHandler(t)),
		withClock(futureClock()),
	}, opts...)
	r, err := New(f.repo, f.invoker, opts...)
	require.NoError(t, err)
	return r
}

func TestSweepConfirmsStalledConfirming(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx := f.seed(t, tcc.Confirming, false, 0)
	r := newRecovery(t, f)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, f.confirms)
	assert.Zero(t, f.cancels)

	_, err = f.repo.FindByXID(t.Context(), tx.XID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSweepCancelsStalledCancelling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx := f.seed(t, tcc.Cancelling, false, 0)
	r := newRecovery(t, f)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, f.cancels)
	assert.Zero(t, f.confirms)

	_, err = f.repo.FindByXID(t.Context(), tx.XID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSweepCancelsStalledTryingRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx := f.seed(t, tcc.Trying, false, 0)
	r := newRecovery(t, f)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, f.cancels)
	assert.Zero(t, f.confirms)

	_, err = f.repo.FindByXID(t.Context(), tx.XID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSweepSkipsTryingBranch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx := f.seed(t, tcc.Trying, true, 0)
	r := newRecovery(t, f)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, f.confirms)
	assert.Zero(t, f.cancels)

	// The branch waits for its root's decision.
	stored, err := f.repo.FindByXID(t.Context(), tx.XID())
	require.NoError(t, err)
	assert.Equal(t, tcc.Trying, stored.Status())
}

func TestSweepQuarantinesAfterRetryBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tx := f.seed(t, tcc.Confirming, false, 3)
	r := newRecovery(t, f, WithMaxRetryCount(2))

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Quarantined)
	assert.Zero(t, f.confirms)

	// Quarantined records stay for the operator.
	_, err = f.repo.FindByXID(t.Context(), tx.XID())
	assert.NoError(t, err)
}

func TestSweepLeavesFailedPhaseForNextPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.confirmErr = errors.New("participant unavailable")
	tx := f.seed(t, tcc.Confirming, false, 0)
	r := newRecovery(t, f)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, f.confirms)

	stored, err := f.repo.FindByXID(t.Context(), tx.XID())
	require.NoError(t, err)
	assert.Equal(t, tcc.Confirming, stored.Status())
	assert.Equal(t, 1, stored.RetriedCount())
}

func TestSweepIgnoresFreshRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, tcc.Confirming, false, 0)

	r, err := New(f.repo, f.invoker, WithLogHandler(testHandler(t)))
	require.NoError(t, err)

	result, err := r.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Zero(t, f.confirms)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(nil, f.invoker)
	assert.Error(t, err)

	_, err = New(f.repo, nil)
	assert.Error(t, err)

	_, err = New(f.repo, f.invoker, WithRecoverDuration(0))
	assert.Error(t, err)

	_, err = New(f.repo, f.invoker, WithMaxRetryCount(-1))
	assert.Error(t, err)
}
