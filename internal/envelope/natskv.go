package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/access"
)

// kvRecord is the bucket payload: ownership metadata wrapped around the
// caller's content.
type kvRecord struct {
	Owner   string          `json:"owner"`
	Public  bool            `json:"public"`
	Content json.RawMessage `json:"content"`
}

// KVStore implements Store on a NATS JetStream key-value bucket. The
// bucket's Create and Update(revision) operations provide create-if-absent
// and compare-and-swap natively; ownership gating happens at this layer
// by consulting the access oracle.
type KVStore struct {
	kv     nats.KeyValue
	oracle access.Oracle
	logger *zap.Logger
}

// NewKVStore wraps an existing bucket.
func NewKVStore(kv nats.KeyValue, oracle access.Oracle, logger *zap.Logger) *KVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVStore{kv: kv, oracle: oracle, logger: logger}
}

// EnsureBucket creates or opens the named key-value bucket.
func EnsureBucket(js nats.JetStreamContext, bucket string) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("open bucket %q: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "projectd records",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return kv, nil
}

// Fetch implements Store.
func (s *KVStore) Fetch(ctx context.Context, key, principal string) (*Envelope, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("fetch %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %q: %w", key, err)
	}

	rec, err := decodeRecord(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", key, err)
	}

	if !rec.Public && !canAct(ctx, s.oracle, rec.Owner, principal) {
		return nil, fmt.Errorf("fetch %q: %w", key, ErrAccessDenied)
	}

	return &Envelope{
		Key:      key,
		Owner:    rec.Owner,
		Content:  rec.Content,
		Revision: entry.Revision(),
		Public:   rec.Public,
	}, nil
}

// Create implements Store.
func (s *KVStore) Create(ctx context.Context, key, owner string, content []byte) (*Envelope, error) {
	data, err := encodeRecord(&kvRecord{Owner: owner, Content: content})
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", key, err)
	}

	rev, err := s.kv.Create(key, data)
	if err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return nil, fmt.Errorf("create %q: %w", key, ErrExists)
		}
		return nil, fmt.Errorf("create %q: %w", key, err)
	}

	return &Envelope{
		Key:      key,
		Owner:    owner,
		Content:  append([]byte(nil), content...),
		Revision: rev,
	}, nil
}

// Put implements Store.
func (s *KVStore) Put(ctx context.Context, env *Envelope, content []byte, principal string) error {
	if !canAct(ctx, s.oracle, env.Owner, principal) {
		return fmt.Errorf("put %q: %w", env.Key, ErrAccessDenied)
	}

	data, err := encodeRecord(&kvRecord{Owner: env.Owner, Public: env.Public, Content: content})
	if err != nil {
		return fmt.Errorf("put %q: %w", env.Key, err)
	}

	rev, err := s.kv.Update(env.Key, data, env.Revision)
	if err != nil {
		return fmt.Errorf("put %q: %w", env.Key, classifyWriteError(err))
	}

	env.Revision = rev
	env.Content = append([]byte(nil), content...)
	return nil
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, key, principal string) error {
	env, err := s.Fetch(ctx, key, principal)
	if err != nil {
		return err
	}
	if !canAct(ctx, s.oracle, env.Owner, principal) {
		return fmt.Errorf("delete %q: %w", key, ErrAccessDenied)
	}

	if err := s.kv.Purge(key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// SetPublicReadable implements Store.
func (s *KVStore) SetPublicReadable(ctx context.Context, env *Envelope) error {
	data, err := encodeRecord(&kvRecord{Owner: env.Owner, Public: true, Content: env.Content})
	if err != nil {
		return fmt.Errorf("set public %q: %w", env.Key, err)
	}

	rev, err := s.kv.Update(env.Key, data, env.Revision)
	if err != nil {
		return fmt.Errorf("set public %q: %w", env.Key, classifyWriteError(err))
	}

	env.Public = true
	env.Revision = rev
	return nil
}

func encodeRecord(rec *kvRecord) ([]byte, error) {
	if len(rec.Content) == 0 {
		rec.Content = json.RawMessage(`null`)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*kvRecord, error) {
	var rec kvRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// classifyWriteError maps the bucket's optimistic-concurrency failures
// to ErrConflict and passes everything else through.
func classifyWriteError(err error) error {
	if errors.Is(err, nats.ErrKeyExists) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
