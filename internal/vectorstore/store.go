package vectorstore

import (
	"context"
	"fmt"
)

// Record is one embedded chunk in the similarity index. The ID is derived
// deterministically from (document, page, chunk) so re-ingestion overwrites
// instead of duplicating.
type Record struct {
	ID         string
	CrawlJobID string
	DocumentID string
	PageIndex  int
	ChunkIndex int
	ChunkCount int
	URL        string
	Title      string
	Snippet    string
	Embedding  []float32
}

// RecordID derives the index identifier for a chunk. Identical inputs always
// yield the same id; upsert relies on this for idempotency.
func RecordID(documentID string, pageIndex, chunkIndex int) string {
	return fmt.Sprintf("%s-p%d-c%d", documentID, pageIndex, chunkIndex)
}

type QueryOptions struct {
	// CrawlJobID scopes the search to one crawl job's vectors. Cross-document
	// leakage must be impossible even for semantically similar content.
	CrawlJobID string
	TopK       int
}

type Match struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	CrawlJobID string  `json:"crawl_job_id"`
	URL        string  `json:"url,omitempty"`
	Title      string  `json:"title,omitempty"`
	Snippet    string  `json:"snippet"`
}

// Index is the narrow surface the pipeline needs from an external similarity
// index: batched insert-or-overwrite, fetch-by-id for read-after-write
// verification, and scoped nearest-neighbor search.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	FetchByIDs(ctx context.Context, ids []string) ([]Record, error)
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}
