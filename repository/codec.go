package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

// record is the serialized layout shared by all repository backends.
type record struct {
	XID            string                    `json:"xid"`
	BranchID       string                    `json:"branch_id,omitempty"`
	Type           uint8                     `json:"type"`
	Status         string                    `json:"status"`
	RetriedCount   int                       `json:"retried_count"`
	Version        int64                     `json:"version"`
	CreateTime     time.Time                 `json:"create_time"`
	LastUpdateTime time.Time                 `json:"last_update_time"`
	Participants   []transaction.Participant `json:"participants,omitempty"`
	Attachments    json.RawMessage           `json:"attachments,omitempty"`
}

// MarshalSnapshot serializes a transaction snapshot into the persisted
// record form. Attachments pass through a protobuf Struct so only plain
// JSON-compatible values survive persistence.
func MarshalSnapshot(s transaction.Snapshot) ([]byte, error) {
	rec := record{
		XID:            s.XID.String(),
		Type:           uint8(s.Type),
		Status:         s.Status.String(),
		RetriedCount:   s.RetriedCount,
		Version:        s.Version,
		CreateTime:     s.CreateTime,
		LastUpdateTime: s.LastUpdateTime,
		Participants:   s.Participants,
	}
	if s.BranchID != uuid.Nil {
		rec.BranchID = s.BranchID.String()
	}

	if len(s.Attachments) > 0 {
		pbStruct, err := structpb.NewStruct(s.Attachments)
		if err != nil {
			return nil, fmt.Errorf("serialize attachments for %s: %w", s.XID, err)
		}
		attachments, err := protojson.Marshal(pbStruct)
		if err != nil {
			return nil, fmt.Errorf("serialize attachments for %s: %w", s.XID, err)
		}
		rec.Attachments = attachments
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("serialize record %s: %w", s.XID, err)
	}
	return data, nil
}

// UnmarshalSnapshot deserializes a persisted record back into a snapshot.
func UnmarshalSnapshot(data []byte) (transaction.Snapshot, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return transaction.Snapshot{}, fmt.Errorf("deserialize record: %w", err)
	}

	xid, err := uuid.FromString(rec.XID)
	if err != nil {
		return transaction.Snapshot{}, fmt.Errorf("deserialize record xid %q: %w", rec.XID, err)
	}
	branchID := uuid.Nil
	if rec.BranchID != "" {
		branchID, err = uuid.FromString(rec.BranchID)
		if err != nil {
			return transaction.Snapshot{}, fmt.Errorf("deserialize record branch id %q: %w", rec.BranchID, err)
		}
	}
	status, err := tcc.ParseStatus(rec.Status)
	if err != nil {
		return transaction.Snapshot{}, fmt.Errorf("deserialize record %s: %w", rec.XID, err)
	}

	snap := transaction.Snapshot{
		XID:            xid,
		BranchID:       branchID,
		Type:           tcc.TransactionType(rec.Type),
		Status:         status,
		RetriedCount:   rec.RetriedCount,
		Version:        rec.Version,
		CreateTime:     rec.CreateTime,
		LastUpdateTime: rec.LastUpdateTime,
		Participants:   rec.Participants,
	}

	if len(rec.Attachments) > 0 {
		var pbStruct structpb.Struct
		if err := protojson.Unmarshal(rec.Attachments, &pbStruct); err != nil {
			return transaction.Snapshot{}, fmt.Errorf("deserialize attachments for %s: %w", rec.XID, err)
		}
		snap.Attachments = pbStruct.AsMap()
	}

	return snap, nil
}
