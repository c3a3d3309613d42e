package model

import "math"

// HubStats are hub-wide counts of raw records, observations, and mapping rules.
type HubStats struct {
	ProcessedRecords  int `json:"processed_records"`
	PendingRecords    int `json:"pending_records"`
	NormalizedRecords int `json:"normalized_records"`
	ValidatedMappings int `json:"validated_mappings"`
	TotalMappings     int `json:"total_mappings"`
}

// Completeness is observations per processed record as a percentage, capped
// at 100. Zero when nothing has been processed.
func (s HubStats) Completeness() int {
	if s.ProcessedRecords == 0 {
		return 0
	}
	pct := int(math.Round(float64(s.NormalizedRecords) / float64(s.ProcessedRecords) * 100))
	return min(pct, 100)
}

// Consistency is the share of mapping rules that are validated, as a percentage.
func (s HubStats) Consistency() int {
	if s.TotalMappings == 0 {
		return 0
	}
	return int(math.Round(float64(s.ValidatedMappings) / float64(s.TotalMappings) * 100))
}
