package domain

import "time"

// ArticleStatus enumerates the per-article processing milestones. Transitions
// are forward-only: PENDING -> PROCESSING -> PROCESSED or FAILED.
type ArticleStatus string

const (
	StatusPending    ArticleStatus = "PENDING"
	StatusProcessing ArticleStatus = "PROCESSING"
	StatusProcessed  ArticleStatus = "PROCESSED"
	StatusFailed     ArticleStatus = "FAILED"
)

// ArticleCandidate is a transient article produced by fetchers. It is consumed
// by the ingestion pipeline and never persisted directly.
type ArticleCandidate struct {
	SourceID    int64
	SourceName  string
	ExternalURL string
	Title       string
	Author      string
	Description string
	Content     string
	PublishedAt time.Time
}

// Article is the persisted entity. ExternalURL is globally unique and serves
// as the sole deduplication key across runs. ChunkCount and Indexed are set
// only on the transition to PROCESSED.
type Article struct {
	ID           int64
	SourceID     int64
	ExternalURL  string
	Title        string
	Description  string
	PublishedAt  time.Time
	Status       ArticleStatus
	ChunkCount   int
	Indexed      bool
	ErrorMessage string
	FetchedAt    time.Time
}
