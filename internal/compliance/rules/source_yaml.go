package rules

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"chaintrace/internal/compliance/models"
)

// rulePack is the on-disk shape of a YAML rule pack.
type rulePack struct {
	Version string        `yaml:"version"`
	Rules   []models.Rule `yaml:"rules"`
}

// YAMLSource serves rules from a versioned YAML rule pack loaded once at
// construction. Rule packs are deployed as configuration; a new pack means
// a new process (plus a cache invalidation for running instances).
type YAMLSource struct {
	version string
	byKey   map[string][]models.Rule
}

// NewYAMLSource parses the rule pack at path and indexes it by (role, action).
func NewYAMLSource(path string) (*YAMLSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack %s: %w", path, err)
	}
	return ParseYAMLSource(data)
}

// ParseYAMLSource builds a source from raw rule pack bytes.
func ParseYAMLSource(data []byte) (*YAMLSource, error) {
	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("unmarshal rule pack: %w", err)
	}

	byKey := make(map[string][]models.Rule)
	for _, rule := range pack.Rules {
		if !rule.RoleType.IsValid() {
			return nil, fmt.Errorf("rule pack contains unknown role %q", rule.RoleType)
		}
		if rule.Action == "" {
			return nil, fmt.Errorf("rule pack contains rule without action (role %s)", rule.RoleType)
		}
		if rule.SequencePosition == 0 {
			rule.SequencePosition = rule.RoleType.SequencePosition()
		}
		key := sourceKey(rule.RoleType, rule.Action)
		byKey[key] = append(byKey[key], rule)
	}

	for _, list := range byKey {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].SequencePosition < list[j].SequencePosition
		})
	}

	return &YAMLSource{version: pack.Version, byKey: byKey}, nil
}

// Version reports the rule pack version string.
func (s *YAMLSource) Version() string {
	return s.version
}

func (s *YAMLSource) Rules(_ context.Context, role models.RoleType, action string) ([]models.Rule, error) {
	list := s.byKey[sourceKey(role, action)]
	return append([]models.Rule(nil), list...), nil
}

func sourceKey(role models.RoleType, action string) string {
	return string(role) + ":" + action
}
