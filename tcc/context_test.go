package tcc

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWireRoundTrip(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{Trying, Confirming, Cancelling} {
		t.Run(status.String(), func(t *testing.T) {
			t.Parallel()

			c := NewContext(uuid.Must(uuid.NewV6()), uuid.Must(uuid.NewV6()), status)

			data, err := c.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, data, WireSize)

			var decoded Context
			require.NoError(t, decoded.UnmarshalBinary(data))
			assert.Equal(t, c, decoded)
		})
	}
}

func TestContextMarshalInvalidStatus(t *testing.T) {
	t.Parallel()

	c := Context{XID: uuid.Must(uuid.NewV6())}
	_, err := c.MarshalBinary()
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestContextUnmarshalErrors(t *testing.T) {
	t.Parallel()

	t.Run("short buffer", func(t *testing.T) {
		t.Parallel()

		var c Context
		assert.Error(t, c.UnmarshalBinary(make([]byte, WireSize-1)))
	})

	t.Run("invalid status byte", func(t *testing.T) {
		t.Parallel()

		buf := make([]byte, WireSize)
		buf[32] = 99
		var c Context
		assert.ErrorIs(t, c.UnmarshalBinary(buf), ErrUnknownStatus)
	})
}

func TestIncomingContext(t *testing.T) {
	t.Parallel()

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		_, ok := FromIncomingContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		want := NewContext(uuid.Must(uuid.NewV6()), uuid.Nil, Trying)
		ctx := NewIncomingContext(context.Background(), want)

		got, ok := FromIncomingContext(ctx)
		require.True(t, ok)
		assert.Equal(t, want, got)
	})
}
