package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docsbase/backend/internal/config"
	"github.com/docsbase/backend/internal/embedding"
	"github.com/docsbase/backend/internal/models"
	"github.com/docsbase/backend/internal/vectorstore"
	"github.com/docsbase/backend/pkg/chunker"
)

// Indexer turns a document's pages into verified vector records: chunk,
// embed in batches, upsert in batches, then probe the index for
// read-after-write consistency before declaring the job done.
type Indexer struct {
	embedder embedding.Embedder
	index    vectorstore.Index
	cfg      config.IngestConfig
}

func NewIndexer(embedder embedding.Embedder, index vectorstore.Index, cfg config.IngestConfig) *Indexer {
	return &Indexer{embedder: embedder, index: index, cfg: cfg}
}

// IndexDocument runs the full pipeline for one document and returns the
// number of vectors written. All embedding batches complete before the first
// upsert batch; any batch failure in either phase is fatal. Verification
// failure is not: the external index is eventually consistent and a missed
// probe is logged as a warning, never an error.
func (ix *Indexer) IndexDocument(ctx context.Context, doc *models.Document, pages []models.Page) (int, error) {
	opts := chunker.Options{Size: ix.cfg.ChunkSize, Overlap: ix.cfg.ChunkOverlap}
	docID := doc.ID.String()

	var texts []string
	var records []vectorstore.Record
	for pageIdx, page := range pages {
		chunks := chunker.Split(page.Content, opts)
		for _, c := range chunks {
			texts = append(texts, c.Content)
			records = append(records, vectorstore.Record{
				ID:         vectorstore.RecordID(docID, pageIdx, c.Index),
				CrawlJobID: doc.CrawlJobID,
				DocumentID: docID,
				PageIndex:  pageIdx,
				ChunkIndex: c.Index,
				ChunkCount: len(chunks),
				URL:        page.URL,
				Title:      page.Title,
				Snippet:    truncate(c.Content, ix.cfg.SnippetLimit),
			})
		}
	}

	if len(records) == 0 {
		return 0, nil
	}

	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(records) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(embeddings), len(records))
	}
	for i := range records {
		records[i].Embedding = embeddings[i]
	}

	for i := 0; i < len(records); i += ix.cfg.UpsertBatchSize {
		end := i + ix.cfg.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := ix.index.Upsert(ctx, records[i:end]); err != nil {
			return 0, fmt.Errorf("upsert batch %d: %w", i/ix.cfg.UpsertBatchSize, err)
		}
	}

	slog.Info("vectors upserted",
		"document_id", docID,
		"crawl_job_id", doc.CrawlJobID,
		"pages", len(pages),
		"vectors", len(records),
	)

	sampleIDs := verificationSample(records, ix.cfg.VerifySampleSize)
	if err := ix.verifyWithRetries(ctx, sampleIDs); err != nil {
		slog.Warn("vector verification inconclusive, data may still be propagating",
			"document_id", docID, "error", err)
	}

	if err := ix.settle(ctx, len(records)); err != nil {
		return 0, err
	}

	// Final best-effort probe after the settling delay.
	if err := ix.verifyOnce(ctx, sampleIDs); err != nil {
		slog.Warn("post-settle vector verification inconclusive",
			"document_id", docID, "error", err)
	}

	return len(records), nil
}

func verificationSample(records []vectorstore.Record, n int) []string {
	if n > len(records) {
		n = len(records)
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = records[i].ID
	}
	return ids
}

func (ix *Indexer) verifyWithRetries(ctx context.Context, ids []string) error {
	var lastErr error
	for attempt := 1; attempt <= ix.cfg.MaxVerifyRetries; attempt++ {
		lastErr = ix.verifyOnce(ctx, ids)
		if lastErr == nil {
			return nil
		}
		if attempt < ix.cfg.MaxVerifyRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.cfg.VerifyRetryDelay):
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", ix.cfg.MaxVerifyRetries, lastErr)
}

func (ix *Indexer) verifyOnce(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := ix.index.FetchByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch by ids: %w", err)
	}
	if len(found) < len(ids) {
		return fmt.Errorf("found %d of %d sampled vectors", len(found), len(ids))
	}
	return nil
}

// settle waits for the index to absorb the write before callers start
// querying: min(base + perVector*n, max).
func (ix *Indexer) settle(ctx context.Context, vectorCount int) error {
	delay := ix.cfg.SettleBaseDelay + time.Duration(vectorCount)*ix.cfg.SettlePerVector
	if delay > ix.cfg.SettleMaxDelay {
		delay = ix.cfg.SettleMaxDelay
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
