package model

import "time"

// Urgency ranks missing-KPI remediation.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// AllUrgencies returns urgencies from most to least urgent.
func AllUrgencies() []Urgency {
	return []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow}
}

// UrgencyFor derives urgency from a KPI category.
func UrgencyFor(c Category) Urgency {
	switch c {
	case CategoryEnvironmental:
		return UrgencyHigh
	case CategoryGovernance:
		return UrgencyMedium
	case CategorySocial:
		return UrgencyLow
	default:
		return UrgencyMedium
	}
}

// MissingKPIAlert describes a required KPI with no observation in a period.
type MissingKPIAlert struct {
	KPIID        string     `json:"kpi_id"`
	KPIName      string     `json:"kpi_name"`
	Category     Category   `json:"category"`
	Urgency      Urgency    `json:"urgency"`
	LastReported *time.Time `json:"last_reported,omitempty"`
}
