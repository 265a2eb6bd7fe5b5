// Package archive moves cold engine records into blob storage. It holds
// snapshot content offloaded from state records and the exported event
// streams of archived states
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kode4food/timebox"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// Store reads and writes engine records in a blob bucket
	Store struct {
		bucket *blob.Bucket
		prefix string
	}

	// Record is the exported form of an archived state's event stream
	Record struct {
		StreamID         string            `json:"stream_id"`
		AggregateID      string            `json:"aggregate_id"`
		SnapshotSequence int64             `json:"snapshot_sequence"`
		SnapshotData     json.RawMessage   `json:"snapshot_data,omitempty"`
		Events           []json.RawMessage `json:"events,omitempty"`
	}
)

var (
	ErrNotFound         = errors.New("archive object not found")
	ErrBucketRequired   = errors.New("bucket is required")
	ErrRecordRequired   = errors.New("archive record is required")
	ErrSnapshotRequired = errors.New("snapshot is required")
)

// NewStore opens the bucket at the given URL. The URL scheme selects the
// provider (s3, gs, azblob, or anything else gocloud registers)
func NewStore(
	ctx context.Context, bucketURL, prefix string,
) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewStoreWithBucket(bucket, prefix)
}

// NewStoreWithBucket wraps an already opened bucket
func NewStoreWithBucket(bucket *blob.Bucket, prefix string) (*Store, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	return &Store{
		bucket: bucket,
		prefix: normalizePrefix(prefix),
	}, nil
}

// PutSnapshot writes snapshot content to the bucket and returns the key
// it was stored under
func (s *Store) PutSnapshot(
	ctx context.Context, snap *api.StateSnapshot,
) (string, error) {
	if snap == nil {
		return "", ErrSnapshotRequired
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	key := s.snapshotKey(snap.StateID, snap.ID)
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return "", err
	}
	return key, nil
}

// GetSnapshot reads snapshot content back by the key PutSnapshot returned
func (s *Store) GetSnapshot(
	ctx context.Context, ref string,
) (*api.StateSnapshot, error) {
	data, err := s.bucket.ReadAll(ctx, ref)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}

	var snap api.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Write exports an archived event stream and returns the key it was
// stored under
func (s *Store) Write(
	ctx context.Context, record *timebox.ArchiveRecord,
) (string, error) {
	if record == nil {
		return "", ErrRecordRequired
	}

	obj := Record{
		StreamID:         record.StreamID,
		AggregateID:      record.AggregateID.Join(":"),
		SnapshotSequence: record.SnapshotSequence,
		SnapshotData:     normalizeRawMessage(record.SnapshotData),
		Events:           normalizeRawMessages(record.Events),
	}
	data, err := json.Marshal(&obj)
	if err != nil {
		return "", err
	}

	key := s.recordKey(record.AggregateID)
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return "", err
	}
	return key, nil
}

// ReadRecord reads an exported event stream back by its key
func (s *Store) ReadRecord(
	ctx context.Context, ref string,
) (*Record, error) {
	data, err := s.bucket.ReadAll(ctx, ref)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Close releases the bucket handle
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) snapshotKey(
	stateID api.StateID, snapID api.SnapshotID,
) string {
	return s.prefix + "snapshots/" + string(stateID) + "/" +
		string(snapID) + ".json"
}

func (s *Store) recordKey(id timebox.AggregateID) string {
	return s.prefix + id.Join("/") + ".json"
}

func normalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

func normalizeRawMessage(msg json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(msg))) == 0 {
		return nil
	}
	return msg
}

func normalizeRawMessages(msgs []json.RawMessage) []json.RawMessage {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]json.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		if len(strings.TrimSpace(string(msg))) == 0 {
			continue
		}
		out = append(out, msg)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
