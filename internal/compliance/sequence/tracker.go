// Package sequence tracks which workflow stages each product has completed
// and decides whether an attempted action is in order. The check and the
// commit are split so the validator can run field checks in between while
// the product stays reserved; a per-product mutex serializes that window
// in-process, and the cache adapter's atomic update guards it across
// instances.
package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chaintrace/internal/cache"
	"chaintrace/internal/compliance/models"
	dErrors "chaintrace/pkg/domain-errors"
)

const stateKeyPrefix = "seqstate:"

// Tracker maintains per-product sequence state through the cache adapter.
type Tracker struct {
	cache  cache.Adapter
	ttl    time.Duration
	locks  *keyedMutex
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New constructs the tracker. ttl is the state retention window (long-lived;
// on the order of a day).
func New(cacheAdapter cache.Adapter, ttl time.Duration, opts ...Option) (*Tracker, error) {
	if cacheAdapter == nil {
		return nil, fmt.Errorf("cache adapter is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("state ttl must be positive")
	}

	t := &Tracker{
		cache:  cacheAdapter,
		ttl:    ttl,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Reservation holds the per-product lock between a successful ordering check
// and its commit. Exactly one of Commit or Release must conclude it; Release
// is idempotent, so callers defer it unconditionally.
type Reservation struct {
	tracker      *Tracker
	productID    string
	role         models.RoleType
	position     int
	dependencies []string
	violation    string
	unlock       func()
}

// CheckAndReserve loads the product's sequence state and applies the
// ordering rules. When the action is in order, the returned reservation
// holds the product lock until Commit or Release. When it is out of order,
// the reservation carries the violation and the lock is already released.
// Only cache faults return an error.
func (t *Tracker) CheckAndReserve(ctx context.Context, productID string, role models.RoleType, position int, dependencies []string) (*Reservation, error) {
	unlock := t.locks.Lock(stateKey(productID))

	state, err := t.load(ctx, productID)
	if err != nil {
		unlock()
		return nil, err
	}

	res := &Reservation{
		tracker:      t,
		productID:    productID,
		role:         role,
		position:     position,
		dependencies: dependencies,
		unlock:       unlock,
	}

	if violation := checkOrder(state, role, position, dependencies); violation != "" {
		res.violation = violation
		res.Release()
	}
	return res, nil
}

// Violation returns the ordering violation found by CheckAndReserve,
// or "" when the action was in order.
func (r *Reservation) Violation() string {
	return r.violation
}

// Allowed reports whether the reservation may be committed.
func (r *Reservation) Allowed() bool {
	return r.violation == ""
}

// Release abandons the reservation without recording a stage.
func (r *Reservation) Release() {
	if r.unlock != nil {
		r.unlock()
	}
}

// Commit appends the completed stage and writes the state back with the
// tracker's TTL. The ordering check is re-run against the freshly read state
// inside the atomic update; if another engine instance committed a
// conflicting stage since CheckAndReserve, the returned violation is
// non-empty and nothing is written. Infrastructure faults return an error.
func (r *Reservation) Commit(ctx context.Context, stageID, actor string, now time.Time) (string, error) {
	if !r.Allowed() {
		return "", fmt.Errorf("commit on rejected reservation for product %s", r.productID)
	}
	defer r.Release()

	var lostViolation string
	err := r.tracker.cache.Update(ctx, stateKey(r.productID), r.tracker.ttl,
		func(old []byte, exists bool) ([]byte, error) {
			state := &State{ProductID: r.productID}
			if exists {
				if err := json.Unmarshal(old, state); err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode sequence state")
				}
			}

			if violation := checkOrder(state, r.role, r.position, r.dependencies); violation != "" {
				lostViolation = violation
				return nil, errReservationLost
			}

			state.Stages = append(state.Stages, Stage{
				Role:             r.role,
				SequencePosition: r.position,
				StageID:          stageID,
				Actor:            actor,
				RecordedAt:       now.UTC(),
			})
			return json.Marshal(state)
		})

	if errors.Is(err, errReservationLost) {
		r.tracker.logger.WarnContext(ctx, "sequence reservation lost to concurrent commit",
			"product_id", r.productID,
			"role", r.role,
			"position", r.position,
		)
		return lostViolation, nil
	}
	if err != nil {
		var classified *dErrors.Error
		if errors.As(err, &classified) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "sequence state commit failed")
	}
	return "", nil
}

// errReservationLost aborts the atomic update when the re-check fails.
var errReservationLost = errors.New("sequence: reservation lost")

// State returns the completed stages for a product. A product with no
// recorded stages yields an empty state, not an error.
func (t *Tracker) State(ctx context.Context, productID string) (*State, error) {
	return t.load(ctx, productID)
}

func (t *Tracker) load(ctx context.Context, productID string) (*State, error) {
	state := &State{ProductID: productID}

	data, err := t.cache.Get(ctx, stateKey(productID))
	if errors.Is(err, cache.ErrMiss) {
		return state, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "sequence state read failed")
	}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode sequence state")
	}
	return state, nil
}

func stateKey(productID string) string {
	return stateKeyPrefix + productID
}
