// Package rules loads and caches compliance rules. The repository is
// cache-first; the backing source (YAML pack or Postgres) is only consulted
// on a miss and concurrent misses for the same key are collapsed.
package rules

import (
	"context"

	"chaintrace/internal/compliance/models"
)

// Source resolves the ordered rule list for a (role, action) pair. Backends
// are opaque to the repository beyond this contract; an unknown pair yields
// an empty slice, never an error.
type Source interface {
	Rules(ctx context.Context, role models.RoleType, action string) ([]models.Rule, error)
}
