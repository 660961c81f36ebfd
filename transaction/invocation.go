package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tylooio/tyloo/tcc"
)

// Invocation is a value-captured descriptor of a confirm or cancel call:
// the target handler identifier, the method name, and the arguments
// serialized at enlistment time. Descriptors are immutable once enlisted
// and survive persistence, so a recovery sweep on another process can
// re-drive them.
type Invocation struct {
	Target string          `json:"target"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// NewInvocation captures args by value via JSON serialization.
func NewInvocation(target, method string, args any) (Invocation, error) {
	inv := Invocation{Target: target, Method: method}
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return Invocation{}, fmt.Errorf("serialize invocation args for %s/%s: %w", target, method, err)
		}
		inv.Args = data
	}
	return inv, nil
}

func (i Invocation) String() string {
	return i.Target + "/" + i.Method
}

// HandlerFunc is a registered confirm or cancel handler. It receives the
// branch context of the transaction driving it and the arguments captured
// at enlistment. Handlers must be idempotent: a phase may be re-driven any
// number of times by recovery.
type HandlerFunc func(ctx context.Context, txCtx tcc.Context, args json.RawMessage) error

// Invoker resolves invocation descriptors to registered handlers. It is the
// runtime half of the descriptor scheme: descriptors name handlers, the
// invoker owns them.
type Invoker struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewInvoker creates an empty handler registry.
func NewInvoker() *Invoker {
	return &Invoker{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a target/method pair. Registering the same
// pair twice is a programmer error.
func (r *Invoker) Register(target, method string, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil handler for %s/%s", tcc.ErrSystem, target, method)
	}
	key := target + "/" + method

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: handler %s already registered", tcc.ErrSystem, key)
	}
	r.handlers[key] = fn
	return nil
}

// Invoke dispatches a descriptor to its registered handler.
func (r *Invoker) Invoke(ctx context.Context, txCtx tcc.Context, inv Invocation) error {
	r.mu.RLock()
	fn, ok := r.handlers[inv.String()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no handler registered for %s", tcc.ErrSystem, inv)
	}
	return fn(ctx, txCtx, inv.Args)
}
