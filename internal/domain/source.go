package domain

import "time"

// SourceType discriminates how a configured source is fetched.
type SourceType string

const (
	SourceTypeRSS     SourceType = "RSS"
	SourceTypeNewsAPI SourceType = "NEWSAPI"
)

// Source is a configured upstream provider. It is owned by the admin surface
// and read-only to the ingestion pipeline. Locator holds a feed URL for RSS
// sources and a provider id for headline-API sources.
type Source struct {
	ID               int64
	Name             string
	Type             SourceType
	Locator          string
	Category         string
	Enabled          bool
	ReliabilityScore float64
	LastFetchedAt    time.Time
	LastSuccessAt    time.Time
	FailureCount     int
}
