package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docsbase/backend/internal/config"
	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/ingest"
)

const webhookSecret = "whsec-test"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func fastIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		ChunkSize:        6000,
		ChunkOverlap:     200,
		EmbedBatchSize:   100,
		UpsertBatchSize:  100,
		SnippetLimit:     1000,
		VerifySampleSize: 5,
		MaxVerifyRetries: 1,
		VerifyRetryDelay: time.Millisecond,
		SettleBaseDelay:  0,
		SettlePerVector:  0,
		SettleMaxDelay:   time.Millisecond,
	}
}

func completedPayload(t *testing.T, jobID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type":     "crawl.completed",
		"id":       jobID,
		"success":  true,
		"metadata": map[string]string{"url": "https://docs.example.com"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/firecrawl", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestWebhookRejectsTamperedSignature(t *testing.T) {
	store := newMemStore()
	store.CreateDocument(context.Background(), docstore.CreateDocumentRequest{
		OwnerID: "owner-1", URL: "https://docs.example.com", Name: "docs.example.com", CrawlJobID: "job-1",
	})
	writesBefore := store.writes

	idx := newMemIndex()
	indexer := ingest.NewIndexer(stubEmbedder{}, idx, fastIngestConfig())
	h := NewWebhookHandler(store, &stubCrawler{}, indexer, &stubQueue{}, webhookSecret)

	body := completedPayload(t, "job-1")
	rec := postWebhook(h, body, sign("wrong-secret", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if store.writes != writesBefore {
		t.Fatalf("store mutated by unauthenticated webhook")
	}
	if len(idx.records) != 0 {
		t.Fatalf("vectors written by unauthenticated webhook")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := NewWebhookHandler(newMemStore(), &stubCrawler{}, nil, nil, webhookSecret)
	rec := postWebhook(h, completedPayload(t, "job-1"), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	store := newMemStore()
	h := NewWebhookHandler(store, &stubCrawler{}, nil, nil, webhookSecret)

	body, _ := json.Marshal(map[string]interface{}{"type": "crawl.page", "id": "job-1"})
	rec := postWebhook(h, body, sign(webhookSecret, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("body = %s, want ignored ack", rec.Body.String())
	}
	if store.writes != 0 {
		t.Fatalf("store mutated by a non-completed event")
	}
}

func TestWebhookCompletedIndexesDocument(t *testing.T) {
	store := newMemStore()
	doc, _ := store.CreateDocument(context.Background(), docstore.CreateDocumentRequest{
		OwnerID: "owner-1", URL: "https://docs.example.com", Name: "docs.example.com", CrawlJobID: "job-1",
	})

	crawl := &stubCrawler{status: &crawler.JobStatus{
		Status: crawler.JobCompleted,
		Total:  2,
		Pages: []crawler.Page{
			{URL: "https://docs.example.com/a", Title: "A", Markdown: strings.Repeat("a", 100)},
			{URL: "https://docs.example.com/b", Title: "B", Markdown: strings.Repeat("b", 100)},
		},
	}}
	idx := newMemIndex()
	indexer := ingest.NewIndexer(stubEmbedder{}, idx, fastIngestConfig())
	h := NewWebhookHandler(store, crawl, indexer, &stubQueue{}, webhookSecret)

	body := completedPayload(t, "job-1")
	rec := postWebhook(h, body, sign(webhookSecret, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DocumentID  string `json:"documentId"`
		VectorCount int    `json:"vectorCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DocumentID != doc.ID.String() || resp.VectorCount != 2 {
		t.Fatalf("response = %+v, want documentId %s and 2 vectors", resp, doc.ID)
	}

	docID := doc.ID.String()
	for _, wantID := range []string{docID + "-p0-c0", docID + "-p1-c0"} {
		if _, ok := idx.records[wantID]; !ok {
			t.Errorf("vector %s missing from index", wantID)
		}
	}
	if len(idx.records) != 2 {
		t.Fatalf("index holds %d vectors, want exactly 2", len(idx.records))
	}

	stored, _ := store.GetDocument(context.Background(), doc.ID)
	if !stored.Completed || !stored.Indexed {
		t.Fatalf("document completed=%v indexed=%v, want both true", stored.Completed, stored.Indexed)
	}
	if len(stored.Pages) != 2 {
		t.Fatalf("document has %d pages, want 2", len(stored.Pages))
	}
	for _, p := range stored.Pages {
		if p.Content != "" {
			t.Fatalf("page content persisted: %q", p.Content)
		}
	}
}

func TestWebhookIndexFailureSchedulesReindex(t *testing.T) {
	store := newMemStore()
	doc, _ := store.CreateDocument(context.Background(), docstore.CreateDocumentRequest{
		OwnerID: "owner-1", URL: "https://docs.example.com", Name: "docs.example.com", CrawlJobID: "job-1",
	})

	crawl := &stubCrawler{status: &crawler.JobStatus{
		Status: crawler.JobCompleted,
		Pages:  []crawler.Page{{URL: "https://docs.example.com/a", Title: "A", Markdown: "alpha"}},
	}}

	embedErr := failEmbedder{err: fmt.Errorf("embedding provider down")}
	indexer := ingest.NewIndexer(embedErr, newMemIndex(), fastIngestConfig())
	q := &stubQueue{}
	h := NewWebhookHandler(store, crawl, indexer, q, webhookSecret)

	body := completedPayload(t, "job-1")
	rec := postWebhook(h, body, sign(webhookSecret, body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].DocumentID != doc.ID.String() {
		t.Fatalf("reindex queue = %+v, want one entry for %s", q.enqueued, doc.ID)
	}

	// The crawl result itself is still recorded so the reindex can replay it.
	stored, _ := store.GetDocument(context.Background(), doc.ID)
	if !stored.Completed || stored.Indexed {
		t.Fatalf("document completed=%v indexed=%v, want completed and not indexed", stored.Completed, stored.Indexed)
	}
}

func TestWebhookUnknownJobNotFound(t *testing.T) {
	h := NewWebhookHandler(newMemStore(), &stubCrawler{status: &crawler.JobStatus{Status: crawler.JobCompleted}},
		ingest.NewIndexer(stubEmbedder{}, newMemIndex(), fastIngestConfig()), &stubQueue{}, webhookSecret)

	body := completedPayload(t, "job-missing")
	rec := postWebhook(h, body, sign(webhookSecret, body))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type failEmbedder struct{ err error }

func (f failEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}

func (f failEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}
