package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/esg-hub/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyProcessed is returned by SaveNormalized when replace is false and
// the raw record has already been marked processed.
var ErrAlreadyProcessed = errors.New("raw record already processed")

// RuleFilter specifies criteria for listing mapping rules.
type RuleFilter struct {
	Alias     string `json:"alias,omitempty"`
	KPIID     string `json:"kpi_id,omitempty"`
	Validated *bool  `json:"validated,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// CatalogStore reads and seeds the KPI catalog.
type CatalogStore interface {
	ListKPIs(ctx context.Context, requiredOnly bool) ([]model.KPI, error)
	UpsertKPIs(ctx context.Context, kpis []model.KPI) (int64, error)
}

// RawStore persists uploaded batches.
type RawStore interface {
	CreateRawRecord(ctx context.Context, rec *model.RawRecord) error
	GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error)
}

// RuleStore is the alias→KPI mapping-rule cache.
type RuleStore interface {
	// BestValidatedRule returns the highest-confidence validated rule for
	// alias, or nil when there is none.
	BestValidatedRule(ctx context.Context, alias string) (*model.MappingRule, error)
	InsertRule(ctx context.Context, rule model.MappingRule) (*model.MappingRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]model.MappingRule, error)
	SetRuleValidated(ctx context.Context, id string, validated bool) error
}

// NormStore holds normalized observations.
type NormStore interface {
	// SaveNormalized inserts recs and marks the raw record processed in one
	// transaction. With replace set, existing observations for the raw
	// record are deleted first.
	SaveNormalized(ctx context.Context, rawRecordID string, recs []model.NormRecord, replace bool) error
	ListNormRecords(ctx context.Context, rawRecordID string) ([]model.NormRecord, error)
	ReportedKPIIDs(ctx context.Context, period string) ([]string, error)
	// LastReported returns the newest observation time for a KPI across all
	// periods, or nil if it was never reported.
	LastReported(ctx context.Context, kpiID string) (*time.Time, error)
}

// EmbeddingStore caches KPI embeddings and answers similarity queries.
type EmbeddingStore interface {
	EmbeddedKPIIDs(ctx context.Context) (map[string]bool, error)
	SaveEmbeddings(ctx context.Context, vecs []model.EmbeddingVector) error
	SearchEmbeddings(ctx context.Context, query []float64, threshold float64, limit int) ([]model.EmbeddingMatch, error)
}

// TaskFilter specifies criteria for listing workflow tasks, newest first.
// An empty Status matches every task.
type TaskFilter struct {
	Status model.TaskStatus
	Limit  int
	Offset int
}

// TaskStore records human follow-up work.
type TaskStore interface {
	CreateTask(ctx context.Context, task model.WorkflowTask) (*model.WorkflowTask, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.WorkflowTask, error)
}

// StatsStore reports hub-wide counts.
type StatsStore interface {
	Stats(ctx context.Context) (*model.HubStats, error)
}

// Store defines the persistence interface for the data hub.
type Store interface {
	CatalogStore
	RawStore
	RuleStore
	NormStore
	EmbeddingStore
	TaskStore
	StatsStore

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var normColumns = []string{"id", "raw_record_id", "kpi_id", "value", "unit", "period", "created_at"}
