package manager

import (
	"context"
	"sync"

	"github.com/tylooio/tyloo/transaction"
)

// stack is the per-call-chain stack of active transactions. One logical
// call chain owns exactly one stack; nested compensable calls inside the
// chain push and pop against it. The carrier is a context value, which is
// how an implicit chain-scoped slot is expressed in Go.
type stack struct {
	mu  sync.Mutex
	txs []*transaction.Transaction
}

func (s *stack) push(tx *transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
}

// pop removes the top of the stack. Callers check the top first via peek.
func (s *stack) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) > 0 {
		s.txs = s.txs[:len(s.txs)-1]
	}
}

func (s *stack) peek() *transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) == 0 {
		return nil
	}
	return s.txs[len(s.txs)-1]
}

func (s *stack) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs) == 0
}

type stackKey struct{}

// WithStack installs a fresh transaction stack on the context unless one is
// already present. The compensable interceptor calls this at every entry,
// so the outermost interception of a chain owns the stack and nested calls
// share it.
func WithStack(ctx context.Context) context.Context {
	if stackFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, stackKey{}, &stack{})
}

func stackFrom(ctx context.Context) *stack {
	s, _ := ctx.Value(stackKey{}).(*stack)
	return s
}
