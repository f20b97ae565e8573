package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"chaintrace/internal/compliance/models"
	dErrors "chaintrace/pkg/domain-errors"
)

// PostgresSource serves rules from the compliance_rules table. Conditions are
// stored as JSONB matching the models.Conditions wire shape.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource wraps an established pgx pool. Pool lifecycle is managed
// by the caller.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Schema is the DDL for the rule table, exposed for migrations and
// integration test setup.
const Schema = `
CREATE TABLE IF NOT EXISTS compliance_rules (
    id                BIGSERIAL PRIMARY KEY,
    role_type         TEXT        NOT NULL,
    action            TEXT        NOT NULL,
    sequence_position INT         NOT NULL,
    stage_id          TEXT        NOT NULL,
    dependencies      TEXT[]      NOT NULL DEFAULT '{}',
    conditions        JSONB       NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (role_type, action, sequence_position)
);
CREATE INDEX IF NOT EXISTS compliance_rules_lookup
    ON compliance_rules (role_type, action);
`

func (s *PostgresSource) Rules(ctx context.Context, role models.RoleType, action string) ([]models.Rule, error) {
	const query = `
		SELECT role_type, action, sequence_position, stage_id, dependencies, conditions
		FROM compliance_rules
		WHERE role_type = $1 AND action = $2
		ORDER BY sequence_position ASC`

	rows, err := s.pool.Query(ctx, query, string(role), action)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query compliance rules")
	}
	defer rows.Close()

	var result []models.Rule
	for rows.Next() {
		var (
			rule          models.Rule
			roleType      string
			conditionsRaw []byte
		)
		if err := rows.Scan(&roleType, &rule.Action, &rule.SequencePosition,
			&rule.StageID, &rule.Dependencies, &conditionsRaw); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan compliance rule")
		}
		rule.RoleType = models.RoleType(roleType)
		if err := json.Unmarshal(conditionsRaw, &rule.Conditions); err != nil {
			return nil, dErrors.Wrap(err,
				dErrors.CodeInternal, fmt.Sprintf("decode conditions for %s/%s", roleType, rule.Action))
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read compliance rules")
	}
	return result, nil
}
