package model

import "time"

// Row is one uploaded row: arbitrary column names to scalar values
// (float64, string, bool or nil after JSON decoding).
type Row map[string]any

// RawRecord is one ingestion event. Processed flips false→true once, after
// every row has been materialized.
type RawRecord struct {
	ID               string    `json:"id"`
	DataSourceID     string    `json:"data_source_id"`
	FileURI          string    `json:"file_uri,omitempty"`
	Rows             []Row     `json:"raw_data"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	UploadedAt       time.Time `json:"upload_timestamp"`
	Processed        bool      `json:"processed"`
}

// NormRecord is one normalized observation. Append-only.
type NormRecord struct {
	ID          string    `json:"id"`
	RawRecordID string    `json:"raw_record_id"`
	KPIID       string    `json:"kpi_id"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	Period      string    `json:"period"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmbeddingVector is a cached embedding plus its metadata (kpi_id, type).
type EmbeddingVector struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float64         `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// KPIID returns the kpi_id metadata entry, if any.
func (e EmbeddingVector) KPIID() string {
	return e.Metadata["kpi_id"]
}

// EmbeddingMatch is one similarity search hit.
type EmbeddingMatch struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// TaskType identifies the kind of workflow task.
type TaskType string

const (
	TaskTypeApproval   TaskType = "approval"
	TaskTypeReview     TaskType = "review"
	TaskTypeCorrection TaskType = "correction"
)

// TaskStatus is the lifecycle state of a workflow task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusApproved  TaskStatus = "approved"
	TaskStatusRejected  TaskStatus = "rejected"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid reports whether s is one of the enumerated task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusApproved, TaskStatusRejected, TaskStatusCompleted:
		return true
	}
	return false
}

// WorkflowTask is a human follow-up item (e.g. a missing-KPI reminder).
type WorkflowTask struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	AssigneeID  string     `json:"assignee_id"`
	RecordID    string     `json:"record_id"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
