package domain

import "time"

// RunStatus enumerates ingestion run outcomes.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

// IngestionRun records one pipeline invocation, scheduled or on-demand.
// Append-only after completion. The correlation id is threaded through every
// external call made during the run.
type IngestionRun struct {
	ID                int64
	CorrelationID     string
	StartedAt         time.Time
	CompletedAt       time.Time
	Status            RunStatus
	ArticlesFetched   int
	ArticlesProcessed int
	ArticlesFailed    int
	ErrorDetails      string
}
