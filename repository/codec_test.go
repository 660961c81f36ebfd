package repository

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	confirm, err := transaction.NewInvocation("stock", "confirm", map[string]any{"sku": "A-1", "qty": 3})
	require.NoError(t, err)
	cancel, err := transaction.NewInvocation("stock", "cancel", map[string]any{"sku": "A-1", "qty": 3})
	require.NoError(t, err)

	now := time.Now().Round(time.Microsecond)
	snap := transaction.Snapshot{
		XID:            uuid.Must(uuid.NewV6()),
		BranchID:       uuid.Must(uuid.NewV6()),
		Type:           tcc.Branch,
		Status:         tcc.Confirming,
		RetriedCount:   2,
		Version:        5,
		CreateTime:     now.Add(-time.Minute),
		LastUpdateTime: now,
		Participants: []transaction.Participant{
			transaction.NewParticipant(uuid.Must(uuid.NewV6()), uuid.Nil, confirm, cancel),
		},
		Attachments: map[string]any{"origin": "api", "priority": float64(3)},
	}

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	decoded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, snap.XID, decoded.XID)
	assert.Equal(t, snap.BranchID, decoded.BranchID)
	assert.Equal(t, snap.Type, decoded.Type)
	assert.Equal(t, snap.Status, decoded.Status)
	assert.Equal(t, snap.RetriedCount, decoded.RetriedCount)
	assert.Equal(t, snap.Version, decoded.Version)
	assert.True(t, snap.CreateTime.Equal(decoded.CreateTime))
	assert.True(t, snap.LastUpdateTime.Equal(decoded.LastUpdateTime))
	assert.Equal(t, snap.Participants, decoded.Participants)
	assert.Equal(t, snap.Attachments, decoded.Attachments)
}

func TestCodecRootHasNoBranchID(t *testing.T) {
	t.Parallel()

	snap := transaction.Snapshot{
		XID:            uuid.Must(uuid.NewV6()),
		Type:           tcc.Root,
		Status:         tcc.Trying,
		Version:        1,
		CreateTime:     time.Now(),
		LastUpdateTime: time.Now(),
	}

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	decoded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, decoded.BranchID)
	assert.Empty(t, decoded.Attachments)
}

func TestCodecRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalSnapshot([]byte("not json"))
	assert.Error(t, err)

	_, err = UnmarshalSnapshot([]byte(`{"xid":"nope","status":"trying"}`))
	assert.Error(t, err)

	_, err = UnmarshalSnapshot([]byte(`{"xid":"00000000-0000-0000-0000-000000000001","status":"paused"}`))
	assert.ErrorIs(t, err, tcc.ErrUnknownStatus)
}
