package mapping

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/store"
)

// Alias is the cache key for a raw column name.
func Alias(column string) string {
	return strings.ToLower(column)
}

// RuleCache reuses validated alias→KPI decisions.
type RuleCache struct {
	rules         store.RuleStore
	validateAbove float64
}

// NewRuleCache returns a cache over rules. New rules are stored validated
// when their confidence is strictly above validateAbove.
func NewRuleCache(rules store.RuleStore, validateAbove float64) *RuleCache {
	return &RuleCache{rules: rules, validateAbove: validateAbove}
}

// Resolve returns the highest-confidence validated rule for the column, or
// nil on a miss.
func (c *RuleCache) Resolve(ctx context.Context, column string) (*model.MappingRule, error) {
	rule, err := c.rules.BestValidatedRule(ctx, Alias(column))
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: resolve alias %q", Alias(column))
	}
	return rule, nil
}

// Store records a fresh classification for the column.
func (c *RuleCache) Store(ctx context.Context, column, kpiID string, confidence float64) (*model.MappingRule, error) {
	return c.put(ctx, column, kpiID, confidence, confidence > c.validateAbove)
}

// StoreValidated records a human- or auto-approved rule.
func (c *RuleCache) StoreValidated(ctx context.Context, column, kpiID string, confidence float64) (*model.MappingRule, error) {
	return c.put(ctx, column, kpiID, confidence, true)
}

func (c *RuleCache) put(ctx context.Context, column, kpiID string, confidence float64, validated bool) (*model.MappingRule, error) {
	rule, err := c.rules.InsertRule(ctx, model.MappingRule{
		Alias:      Alias(column),
		KPIID:      kpiID,
		Confidence: clamp01(confidence),
		Validated:  validated,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: store rule for %q", Alias(column))
	}
	return rule, nil
}
