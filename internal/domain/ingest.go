package domain

import "time"

// Upload and job run statuses.
const (
	StatusSuccess = "success"
	StatusNoop    = "noop"
	StatusRunning = "running"
	StatusError   = "error"
)

// IngestRequest is one ingestion pass for a source.
type IngestRequest struct {
	SourceID string
	// Version requests an explicit version; 0 means "next".
	Version int
	Records []NormalizedRecord
}

// UploadResult summarises one ingestion pass.
type UploadResult struct {
	UploadID          string      `json:"upload_id"`
	SourceID          string      `json:"source_id"`
	SchemaID          string      `json:"schema_id"`
	Version           int         `json:"version"`
	Duplicate         bool        `json:"duplicate"`
	Status            string      `json:"status"`
	RecordsReceived   int         `json:"records_received"`
	DocumentsInserted int         `json:"documents_inserted"`
	DocumentsDropped  int         `json:"documents_dropped"`
	RowsInserted      int         `json:"rows_inserted"`
	RowsDropped       int         `json:"rows_dropped"`
	Tables            []string    `json:"tables,omitempty"`
	Diff              *SchemaDiff `json:"diff,omitempty"`
	CompatibleEngines []string    `json:"compatible_engines"`
	Warnings          []string    `json:"warnings,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	DurationMS        float64     `json:"duration_ms"`
}

// ── Ingest jobs ─────────────────────────────────────────────

const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// TransformConfig is a declarative record transform stored with a job.
type TransformConfig struct {
	Type   string         `json:"type"` // "filter" | "rename" | "select" | "dedupe" | "limit"
	Config map[string]any `json:"config"`
}

// IngestJob is a persisted definition of a repeatable ingestion.
type IngestJob struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SourceID      string            `json:"source_id"`
	SourceType    string            `json:"source_type"`
	SourceConfig  map[string]any    `json:"source_config"`
	Transforms    []TransformConfig `json:"transforms"`
	TriggerType   string            `json:"trigger_type"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string            `json:"trigger_config"` // cron expression or watched file path
	Enabled       bool              `json:"enabled"`
	LastRunAt     *time.Time        `json:"last_run_at,omitempty"`
	LastStatus    string            `json:"last_status"`
	LastError     string            `json:"last_error"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IngestRunLog records one execution of an IngestJob.
type IngestRunLog struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"` // "running" | "success" | "noop" | "error"
	RecordsRead int        `json:"records_read"`
	Version     int        `json:"version"`
	Error       string     `json:"error"`
}
