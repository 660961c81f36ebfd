package tcc

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// WireSize is the exact byte length of a serialized Context: 16 bytes of
// global transaction id, 16 bytes of branch id, and one status byte.
const WireSize = 32 + 1

// Context is the three-field record carried across every RPC boundary
// between a compensable caller and a compensable provider. XID identifies
// the global transaction; BranchID identifies the caller's branch within
// it. Transports may wrap the serialized form but must round-trip it
// bit-exact.
type Context struct {
	XID      uuid.UUID
	BranchID uuid.UUID
	Status   Status
}

// NewContext builds a Context for propagation to a provider.
func NewContext(xid, branchID uuid.UUID, status Status) Context {
	return Context{XID: xid, BranchID: branchID, Status: status}
}

// MarshalBinary serializes the context into the fixed 33-byte wire form.
func (c Context) MarshalBinary() ([]byte, error) {
	if !c.Status.Valid() {
		return nil, fmt.Errorf("marshal context: %w: %d", ErrUnknownStatus, c.Status)
	}
	buf := make([]byte, WireSize)
	copy(buf[0:16], c.XID.Bytes())
	copy(buf[16:32], c.BranchID.Bytes())
	buf[32] = byte(c.Status)
	return buf, nil
}

// UnmarshalBinary deserializes the fixed 33-byte wire form.
func (c *Context) UnmarshalBinary(data []byte) error {
	if len(data) != WireSize {
		return fmt.Errorf("unmarshal context: want %d bytes, got %d", WireSize, len(data))
	}
	xid, err := uuid.FromBytes(data[0:16])
	if err != nil {
		return fmt.Errorf("unmarshal context xid: %w", err)
	}
	branchID, err := uuid.FromBytes(data[16:32])
	if err != nil {
		return fmt.Errorf("unmarshal context branch id: %w", err)
	}
	status := Status(data[32])
	if !status.Valid() {
		return fmt.Errorf("unmarshal context: %w: %d", ErrUnknownStatus, data[32])
	}
	c.XID = xid
	c.BranchID = branchID
	c.Status = status
	return nil
}

func (c Context) String() string {
	return fmt.Sprintf("xid=%s branch=%s status=%s", c.XID, c.BranchID, c.Status)
}

type incomingKey struct{}

// NewIncomingContext attaches an inbound transaction context, as extracted
// by a transport, to the request context. The compensable interceptor reads
// it back to decide the method role.
func NewIncomingContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, incomingKey{}, c)
}

// FromIncomingContext returns the inbound transaction context attached by a
// transport, if any.
func FromIncomingContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(incomingKey{}).(Context)
	return c, ok
}
