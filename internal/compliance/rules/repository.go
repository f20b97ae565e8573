package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"chaintrace/internal/cache"
	"chaintrace/internal/compliance/models"
	dErrors "chaintrace/pkg/domain-errors"
)

const ruleKeyPrefix = "rules:"

// Repository is the cache-first rule loader. Rules are immutable
// configuration, so rule keys need no locking: concurrent population is
// idempotent and last-writer-wins is safe. Singleflight only spares the
// source from a thundering herd after an expiry.
type Repository struct {
	source Source
	cache  cache.Adapter
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// New constructs the repository. ttl is the rule cache retention window.
func New(source Source, cacheAdapter cache.Adapter, ttl time.Duration, opts ...Option) (*Repository, error) {
	if source == nil {
		return nil, fmt.Errorf("rule source is required")
	}
	if cacheAdapter == nil {
		return nil, fmt.Errorf("cache adapter is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("rule cache ttl must be positive")
	}

	repo := &Repository{
		source: source,
		cache:  cacheAdapter,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// LoadRules returns the ordered rule list for (role, action). Unknown roles
// resolve to an empty list without touching cache or source; the validator
// turns that into a RULES_NOT_FOUND rejection. Only cache or source faults
// return an error.
func (r *Repository) LoadRules(ctx context.Context, role models.RoleType, action string) ([]models.Rule, error) {
	if !role.IsValid() {
		return []models.Rule{}, nil
	}

	key := ruleKey(role, action)

	cached, err := r.cache.Get(ctx, key)
	if err == nil {
		var rules []models.Rule
		if err := json.Unmarshal(cached, &rules); err == nil {
			return rules, nil
		}
		// Corrupt entry: drop it and fall through to the source.
		r.logger.WarnContext(ctx, "discarding unparsable rule cache entry", "key", key)
		_ = r.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rule cache read failed")
	}

	result, err, _ := r.group.Do(key, func() (any, error) {
		rules, err := r.source.Rules(ctx, role, action)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rule source lookup failed")
		}
		if rules == nil {
			rules = []models.Rule{}
		}
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].SequencePosition < rules[j].SequencePosition
		})

		encoded, err := json.Marshal(rules)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode rules for cache")
		}
		if err := r.cache.Set(ctx, key, encoded, r.ttl); err != nil {
			// Population failure degrades to read-through on the next call.
			r.logger.WarnContext(ctx, "rule cache population failed", "key", key, "error", err)
		}
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Rule), nil
}

// Invalidate drops the cached rule list for (role, action). Used after a
// rule pack rollout so running instances pick up the new version early.
func (r *Repository) Invalidate(ctx context.Context, role models.RoleType, action string) error {
	if err := r.cache.Delete(ctx, ruleKey(role, action)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "rule cache invalidation failed")
	}
	return nil
}

func ruleKey(role models.RoleType, action string) string {
	return ruleKeyPrefix + string(role) + ":" + action
}
