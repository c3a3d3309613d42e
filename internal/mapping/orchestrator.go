package mapping

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/model"
)

// OrchestratorConfig holds the fusion thresholds.
type OrchestratorConfig struct {
	// EarlyExit is the rule confidence at which no other strategy runs.
	EarlyExit float64
	// AgreementBonus is added once per additional strategy agreeing with
	// the best result.
	AgreementBonus float64
}

// DefaultOrchestratorConfig returns the stock thresholds.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{EarlyExit: 0.8, AgreementBonus: 0.1}
}

// Orchestrator runs the rule strategy first and the probabilistic strategies
// after it, in order, then fuses their suggestions.
type Orchestrator struct {
	rule       Strategy
	strategies []Strategy
	cfg        OrchestratorConfig
}

// NewOrchestrator wires the strategies. fallbacks run in the given order
// when the rule result is below the early-exit threshold.
func NewOrchestrator(rule Strategy, fallbacks []Strategy, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{rule: rule, strategies: fallbacks, cfg: cfg}
}

// Resolve decides which KPI a column denotes. Strategy failures never
// propagate: they show up as outcomes and the strategy counts as abstained.
// A rate-limited strategy stops the remaining ones for this column.
func (o *Orchestrator) Resolve(ctx context.Context, column string, samples []string, catalog *model.Catalog) Decision {
	d := Decision{Outcomes: make(map[model.Source]Outcome, len(o.strategies)+1)}

	var results []*model.Suggestion

	if o.rule != nil {
		sug, err := o.rule.Classify(ctx, column, samples, catalog)
		d.Outcomes[o.rule.Source()] = o.record(column, o.rule, sug, err)
		if sug != nil {
			if sug.Confidence >= o.cfg.EarlyExit {
				d.Suggestion = sug
				return d
			}
			results = append(results, sug)
		}
	}

	stopped := false
	for _, s := range o.strategies {
		if stopped || ctx.Err() != nil {
			d.Outcomes[s.Source()] = OutcomeSkipped
			continue
		}
		sug, err := s.Classify(ctx, column, samples, catalog)
		out := o.record(column, s, sug, err)
		d.Outcomes[s.Source()] = out
		if out == OutcomeRateLimited {
			stopped = true
			continue
		}
		if out == OutcomeSuggested {
			results = append(results, sug)
		}
	}

	d.Suggestion = o.fuse(results)
	return d
}

// fuse picks the most confident result and boosts it for every other result
// naming the same KPI. Ties keep the earlier strategy.
func (o *Orchestrator) fuse(results []*model.Suggestion) *model.Suggestion {
	if len(results) == 0 {
		return nil
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}

	agree := 0
	for _, r := range results {
		if r != best && r.KPIID == best.KPIID {
			agree++
		}
	}

	fused := *best
	if agree > 0 {
		fused.SetConfidence(min(1.0, best.Confidence+o.cfg.AgreementBonus*float64(agree)))
		fused.Source = model.SourceFused
	}
	return &fused
}

func (o *Orchestrator) record(column string, s Strategy, sug *model.Suggestion, err error) Outcome {
	out := outcomeOf(sug, err)
	switch out {
	case OutcomeRateLimited:
		zap.L().Warn("mapping: strategy rate limited, skipping remaining strategies",
			zap.String("column", column),
			zap.String("strategy", string(s.Source())),
		)
	case OutcomeFailed:
		zap.L().Warn("mapping: strategy failed",
			zap.String("column", column),
			zap.String("strategy", string(s.Source())),
			zap.Error(err),
		)
	}
	return out
}
