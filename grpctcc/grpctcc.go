// Package grpctcc propagates the transaction context across gRPC calls.
// The 33-byte wire form travels in binary metadata; the client interceptor
// attaches it for calls made inside a transaction, and the server
// interceptor surfaces it so the compensable interceptor can resolve the
// method role.
package grpctcc

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/tylooio/tyloo/manager"
	"github.com/tylooio/tyloo/tcc"
)

// MetadataKey is the gRPC metadata key carrying the serialized transaction
// context. The -bin suffix makes gRPC base64-encode the raw bytes.
const MetadataKey = "tyloo-context-bin"

type outgoingKey struct{}

// WithOutgoingContext pins an explicit transaction context for the next
// outbound call, overriding what the client interceptor would derive from
// the active transaction. Phase handlers use this to re-send the exact
// context a participant was enlisted with.
func WithOutgoingContext(ctx context.Context, txCtx tcc.Context) context.Context {
	return context.WithValue(ctx, outgoingKey{}, txCtx)
}

func outgoingFrom(ctx context.Context) (tcc.Context, bool) {
	c, ok := ctx.Value(outgoingKey{}).(tcc.Context)
	return c, ok
}

// UnaryClientInterceptor attaches the transaction context to outbound
// calls. An explicitly pinned context wins; otherwise a call made inside an
// active transaction propagates its xid and current status with a freshly
// minted branch id. Calls outside any transaction pass through untouched.
func UnaryClientInterceptor(mgr *manager.TransactionManager) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		txCtx, ok := outgoingFrom(ctx)
		if !ok {
			tx := mgr.CurrentTransaction(ctx)
			if tx == nil {
				return invoker(ctx, method, req, reply, cc, opts...)
			}
			branchID, err := uuid.NewV6()
			if err != nil {
				return err
			}
			txCtx = tcc.NewContext(tx.XID(), branchID, tx.Status())
		}

		wire, err := txCtx.MarshalBinary()
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataKey, string(wire))
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor extracts the transaction context from inbound
// metadata and attaches it to the request context. Requests without one
// pass through untouched; a malformed context fails the call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		values := md.Get(MetadataKey)
		if len(values) == 0 {
			return handler(ctx, req)
		}

		var txCtx tcc.Context
		if err := txCtx.UnmarshalBinary([]byte(values[len(values)-1])); err != nil {
			return nil, err
		}
		return handler(tcc.NewIncomingContext(ctx, txCtx), req)
	}
}
