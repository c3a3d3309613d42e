// Package mapping assigns uploaded spreadsheet columns to catalog KPIs.
//
// Three strategies run in a fixed order: deterministic keyword rules, a
// language-model classification, and embedding similarity. The Orchestrator
// folds their outcomes into one Suggestion; the RuleCache short-circuits
// aliases that already have a validated rule.
package mapping

import (
	"context"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
)

// Strategy proposes a KPI for a column. A nil suggestion with a nil error
// means the strategy abstained.
type Strategy interface {
	Source() model.Source
	Classify(ctx context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error)
}

// Outcome is what one strategy contributed to a decision.
type Outcome string

const (
	OutcomeSuggested   Outcome = "suggested"
	OutcomeAbstained   Outcome = "abstained"
	OutcomeFailed      Outcome = "failed"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSkipped     Outcome = "skipped"
)

// outcomeOf classifies a strategy return value.
func outcomeOf(s *model.Suggestion, err error) Outcome {
	switch {
	case err != nil && llm.IsRateLimited(err):
		return OutcomeRateLimited
	case err != nil:
		return OutcomeFailed
	case s == nil:
		return OutcomeAbstained
	default:
		return OutcomeSuggested
	}
}

// Decision is the fused result for one column plus the per-strategy trace.
type Decision struct {
	Suggestion *model.Suggestion
	Outcomes   map[model.Source]Outcome
}

// RateLimited reports whether a provider refused a call for this column.
func (d Decision) RateLimited() bool {
	for _, o := range d.Outcomes {
		if o == OutcomeRateLimited {
			return true
		}
	}
	return false
}

// Failed reports whether any strategy errored (including rate limits).
func (d Decision) Failed() bool {
	for _, o := range d.Outcomes {
		if o == OutcomeFailed || o == OutcomeRateLimited {
			return true
		}
	}
	return false
}
