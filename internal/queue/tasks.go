package queue

const (
	// TypeDocumentReindex re-runs the embedding pipeline for one document
	// whose webhook-triggered indexing did not finish.
	TypeDocumentReindex = "document:reindex"
	// TypeReindexScan sweeps for completed documents that never got indexed
	// and enqueues a reindex for each.
	TypeReindexScan = "document:reindex_scan"
)

type DocumentReindexPayload struct {
	DocumentID string `json:"document_id"`
}
