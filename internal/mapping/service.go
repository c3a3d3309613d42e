package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/store"
)

// ErrInvalidApproval marks approvals rejected before anything is written.
var ErrInvalidApproval = errors.New("invalid approval")

// ColumnSample is one column submitted for classification.
type ColumnSample struct {
	Column  string   `json:"column"`
	Samples []string `json:"samples"`
}

// SuggestResult pairs a column with its suggestion, if any.
type SuggestResult struct {
	Column      string            `json:"column"`
	Suggestion  *model.Suggestion `json:"suggestion"`
	RateLimited bool              `json:"rate_limited,omitempty"`
}

// Approval confirms that a column denotes a KPI.
type Approval struct {
	Column     string  `json:"column"`
	KPIID      string  `json:"kpi_id"`
	Confidence float64 `json:"confidence"`
}

// Service exposes batch classification and rule review.
type Service struct {
	catalog store.CatalogStore
	rules   store.RuleStore
	cache   *RuleCache
	orch    *Orchestrator
}

// NewService wires the classification service.
func NewService(catalog store.CatalogStore, rules store.RuleStore, cache *RuleCache, orch *Orchestrator) *Service {
	return &Service{catalog: catalog, rules: rules, cache: cache, orch: orch}
}

// LoadCatalog reads the full KPI catalog.
func LoadCatalog(ctx context.Context, st store.CatalogStore) (*model.Catalog, error) {
	kpis, err := st.ListKPIs(ctx, false)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: load catalog")
	}
	return model.NewCatalog(kpis), nil
}

// Suggest classifies each column. Aliases with a validated rule are answered
// from the cache with source "cache".
func (s *Service) Suggest(ctx context.Context, columns []ColumnSample) ([]SuggestResult, error) {
	catalog, err := LoadCatalog(ctx, s.catalog)
	if err != nil {
		return nil, err
	}

	out := make([]SuggestResult, 0, len(columns))
	for _, col := range columns {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "mapping: suggest")
		}
		out = append(out, s.suggestOne(ctx, col, catalog))
	}
	return out, nil
}

func (s *Service) suggestOne(ctx context.Context, col ColumnSample, catalog *model.Catalog) SuggestResult {
	res := SuggestResult{Column: col.Column}

	rule, err := s.cache.Resolve(ctx, col.Column)
	if err != nil {
		zap.L().Warn("mapping: rule cache lookup failed", zap.String("column", col.Column), zap.Error(err))
	}
	if rule != nil {
		if kpi, ok := catalog.Get(rule.KPIID); ok {
			res.Suggestion = model.NewSuggestion(col.Column, kpi, rule.Confidence, col.Samples, model.SourceCache)
			return res
		}
	}

	d := s.orch.Resolve(ctx, col.Column, col.Samples, catalog)
	res.Suggestion = d.Suggestion
	res.RateLimited = d.RateLimited()
	return res
}

// Approve stores each approval as a validated rule. Every KPI id is checked
// against the catalog before anything is written.
func (s *Service) Approve(ctx context.Context, approvals []Approval) ([]model.MappingRule, error) {
	catalog, err := LoadCatalog(ctx, s.catalog)
	if err != nil {
		return nil, err
	}

	var bad []string
	for i, a := range approvals {
		if strings.TrimSpace(a.Column) == "" {
			bad = append(bad, fmt.Sprintf("approval %d: column is required", i))
			continue
		}
		if _, ok := catalog.Get(a.KPIID); !ok {
			bad = append(bad, fmt.Sprintf("approval %d: unknown kpi_id %q", i, a.KPIID))
		}
	}
	if len(bad) > 0 {
		return nil, eris.Wrapf(ErrInvalidApproval, "mapping: %s", strings.Join(bad, "; "))
	}

	out := make([]model.MappingRule, 0, len(approvals))
	for _, a := range approvals {
		conf := a.Confidence
		if conf <= 0 {
			conf = 1.0
		}
		rule, err := s.cache.StoreValidated(ctx, a.Column, a.KPIID, conf)
		if err != nil {
			return out, err
		}
		out = append(out, *rule)
	}

	zap.L().Info("mapping: approved rules", zap.Int("count", len(out)))
	return out, nil
}

// AutoApprove stores the suggestions whose confidence clears the
// auto-approve threshold as validated rules and returns how many it wrote.
func (s *Service) AutoApprove(ctx context.Context, suggestions []model.Suggestion) (int, error) {
	n := 0
	for _, sug := range suggestions {
		if !model.IsAutoApprovable(sug.Confidence) || sug.KPIID == "" {
			continue
		}
		if _, err := s.cache.StoreValidated(ctx, sug.Column, sug.KPIID, sug.Confidence); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ListRules returns stored rules matching filter.
func (s *Service) ListRules(ctx context.Context, filter store.RuleFilter) ([]model.MappingRule, error) {
	rules, err := s.rules.ListRules(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: list rules")
	}
	return rules, nil
}

// SetValidated flips the validated flag of a rule after human review.
func (s *Service) SetValidated(ctx context.Context, ruleID string, validated bool) error {
	if err := s.rules.SetRuleValidated(ctx, ruleID, validated); err != nil {
		return eris.Wrapf(err, "mapping: set validated %s", ruleID)
	}
	return nil
}
