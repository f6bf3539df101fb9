// Package mirror copies published snapshots to Redis so that other
// processes can read the latest state without calling the upstream APIs.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cryptowatch/internal/snapshot"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "cryptowatch"
	DefaultTTL   = time.Minute
	writeTimeout = 2 * time.Second
)

// Redis writes every published snapshot, and each of its records, under
// namespaced keys that expire after ttl. Write failures are logged and
// never reach the refresh loop.
type Redis[V any] struct {
	client    redis.Cmdable
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewRedis creates a mirror for one loop. namespace is usually the loop name.
func NewRedis[V any](client redis.Cmdable, namespace string, ttl time.Duration, logger *slog.Logger) *Redis[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[V]{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.With("component", "mirror", "namespace", namespace),
	}
}

// SnapshotKey is the key holding the full snapshot.
func (r *Redis[V]) SnapshotKey() string {
	return fmt.Sprintf("%s:%s:snapshot", keyPrefix, r.namespace)
}

// RecordKey is the key holding a single record.
func (r *Redis[V]) RecordKey(recordKey string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, r.namespace, recordKey)
}

type entry struct {
	key   string
	value []byte
}

func (r *Redis[V]) entries(s *snapshot.Snapshot[V]) ([]entry, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	out := make([]entry, 0, len(s.Records)+1)
	out = append(out, entry{key: r.SnapshotKey(), value: data})

	for _, rec := range s.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %s: %w", rec.Key, err)
		}
		out = append(out, entry{key: r.RecordKey(rec.Key), value: data})
	}
	return out, nil
}

// Write stores the snapshot in a single transaction.
func (r *Redis[V]) Write(ctx context.Context, s *snapshot.Snapshot[V]) error {
	entries, err := r.entries(s)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	for _, e := range entries {
		pipe.Set(ctx, e.key, e.value, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	return nil
}

// Published implements refresh.Observer.
func (r *Redis[V]) Published(ctx context.Context, s *snapshot.Snapshot[V]) {
	if err := r.Write(ctx, s); err != nil {
		r.logger.Error("Failed to mirror snapshot", "cycle", s.Cycle, "error", err)
		return
	}
	r.logger.Debug("Snapshot mirrored", "cycle", s.Cycle, "records", len(s.Records))
}
