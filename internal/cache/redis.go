package cache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	dErrors "chaintrace/pkg/domain-errors"
)

var cacheOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "chaintrace_cache_op_duration_ms",
	Help:    "Latency of shared cache operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
}, []string{"op"})

// updateMaxRetries bounds optimistic transaction retries before giving up
// with ErrConflict. In-process callers serialize per key already, so the
// budget only has to absorb cross-instance races.
const updateMaxRetries = 64

// Redis implements Adapter on the shared Redis instance. Update uses a
// WATCH-guarded optimistic transaction so read-modify-write cycles for the
// same key never interleave, even across process boundaries.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an established go-redis client. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer observeOp("get", start)

	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "cache get failed")
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer observeOp("set", start)

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache set failed")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer observeOp("delete", start)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache delete failed")
	}
	return nil
}

// Update runs fn inside a WATCH transaction. A concurrent write to the key
// between the read and the write aborts the transaction and the cycle is
// retried with the fresh value, up to updateMaxRetries attempts.
func (r *Redis) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	start := time.Now()
	defer observeOp("update", start)

	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		var fnErr error
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.Get(ctx, key).Bytes()
			exists := true
			if errors.Is(err, redis.Nil) {
				old, exists = nil, false
			} else if err != nil {
				return err
			}

			next, err := fn(old, exists)
			if err != nil {
				fnErr = err
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if fnErr != nil {
			return fnErr
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache update failed")
	}
	return ErrConflict
}

func observeOp(op string, start time.Time) {
	cacheOpDurationMs.WithLabelValues(op).
		Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
