package domain

import "time"

// ChunkResult is one vector-store hit: a text fragment plus the denormalized
// article metadata stored alongside it, so retrieval needs no join.
type ChunkResult struct {
	Text          string
	ArticleID     int64
	ArticleURL    string
	ArticleTitle  string
	SourceName    string
	PublishedDate time.Time
	ChunkIndex    int
	Score         float64
}
