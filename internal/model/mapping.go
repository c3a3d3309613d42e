package model

import "time"

// AutoApproveThreshold is the minimum confidence at which a suggestion may
// become a validated rule without human review.
const AutoApproveThreshold = 0.85

// MappingRule is a cached alias→KPI decision.
type MappingRule struct {
	ID         string    `json:"id"`
	Alias      string    `json:"alias"`
	KPIID      string    `json:"kpi_id"`
	Confidence float64   `json:"confidence"`
	Validated  bool      `json:"validated"`
	CreatedAt  time.Time `json:"created_at"`
}

// Source names the strategy that produced a suggestion.
type Source string

const (
	SourceCache     Source = "cache"
	SourceRule      Source = "rule"
	SourceSemantic  Source = "semantic"
	SourceEmbedding Source = "embedding"
	SourceFused     Source = "fused"
)

// Suggestion is the output of one classification strategy, or the fused
// decision across strategies.
type Suggestion struct {
	Column         string   `json:"column"`
	KPIID          string   `json:"kpi_id"`
	KPIName        string   `json:"kpi_name"`
	Confidence     float64  `json:"confidence"`
	Category       Category `json:"category"`
	Unit           string   `json:"unit"`
	MatchedSamples []string `json:"matched_samples,omitempty"`
	Source         Source   `json:"source"`
	Reasoning      string   `json:"reasoning,omitempty"`
	SuggestedUnit  string   `json:"suggested_unit,omitempty"`
	AutoApprove    bool     `json:"auto_approve"`
}

// IsAutoApprovable reports whether confidence clears AutoApproveThreshold.
func IsAutoApprovable(confidence float64) bool {
	return confidence >= AutoApproveThreshold
}

// NewSuggestion fills the KPI-derived fields of a suggestion.
func NewSuggestion(column string, kpi KPI, confidence float64, samples []string, src Source) *Suggestion {
	return &Suggestion{
		Column:         column,
		KPIID:          kpi.ID,
		KPIName:        kpi.Name,
		Confidence:     confidence,
		Category:       kpi.Category,
		Unit:           kpi.Unit,
		MatchedSamples: samples,
		Source:         src,
		AutoApprove:    IsAutoApprovable(confidence),
	}
}

// SetConfidence updates confidence and the derived auto-approve flag.
func (s *Suggestion) SetConfidence(c float64) {
	s.Confidence = c
	s.AutoApprove = IsAutoApprovable(c)
}
