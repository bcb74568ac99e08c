package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/models"
	"github.com/docsbase/backend/internal/queue"
)

// DocumentIndexer is the slice of the ingest pipeline the workers need.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc *models.Document, pages []models.Page) (int, error)
}

// ReindexWorker repairs documents that completed crawling but never made it
// into the vector index. Page content is not persisted after ingestion, so
// the worker re-fetches it from the crawl provider before replaying the
// pipeline.
type ReindexWorker struct {
	store   docstore.Store
	crawler crawler.API
	indexer DocumentIndexer
}

func NewReindexWorker(store docstore.Store, crawl crawler.API, indexer DocumentIndexer) *ReindexWorker {
	return &ReindexWorker{store: store, crawler: crawl, indexer: indexer}
}

func (w *ReindexWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document id: %w", err)
	}

	doc, err := w.store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Indexed {
		slog.Info("document already indexed, skipping reindex", "document_id", docID)
		return nil
	}
	if !doc.Completed || doc.CrawlJobID == "" {
		slog.Info("document not ready for reindex, skipping", "document_id", docID, "completed", doc.Completed)
		return nil
	}

	status, err := w.crawler.Status(ctx, doc.CrawlJobID)
	if err != nil {
		return fmt.Errorf("fetch crawl result: %w", err)
	}

	pages := make([]models.Page, len(status.Pages))
	for i, p := range status.Pages {
		pages[i] = models.Page{URL: p.URL, Title: p.Title, Content: p.Markdown}
	}

	n, err := w.indexer.IndexDocument(ctx, doc, pages)
	if err != nil {
		return fmt.Errorf("reindex document: %w", err)
	}
	if err := w.store.MarkIndexed(ctx, docID); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}

	slog.Info("document reindexed", "document_id", docID, "vectors", n)
	return nil
}

// ReindexScanWorker sweeps for completed documents stuck unindexed past the
// grace period and enqueues one reindex each. The grace period keeps it from
// racing the webhook path on documents still mid-ingestion.
type ReindexScanWorker struct {
	store       docstore.Store
	client      *queue.Client
	gracePeriod time.Duration
}

func NewReindexScanWorker(store docstore.Store, client *queue.Client, gracePeriod time.Duration) *ReindexScanWorker {
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Minute
	}
	return &ReindexScanWorker{store: store, client: client, gracePeriod: gracePeriod}
}

func (w *ReindexScanWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	docs, err := w.store.ListStaleUnindexed(ctx, w.gracePeriod)
	if err != nil {
		return fmt.Errorf("list stale documents: %w", err)
	}
	for _, doc := range docs {
		if err := w.client.EnqueueDocumentReindex(queue.DocumentReindexPayload{DocumentID: doc.ID.String()}); err != nil {
			slog.Error("failed to enqueue reindex", "document_id", doc.ID, "error", err)
			continue
		}
		slog.Info("stale document queued for reindex", "document_id", doc.ID, "crawl_job_id", doc.CrawlJobID)
	}
	return nil
}
