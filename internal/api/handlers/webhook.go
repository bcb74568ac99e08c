package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docsbase/backend/internal/apperr"
	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/models"
	"github.com/docsbase/backend/internal/queue"
)

const signatureHeader = "X-Firecrawl-Signature"

// DocumentIndexer runs the chunk/embed/upsert pipeline for one document.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc *models.Document, pages []models.Page) (int, error)
}

// ReindexEnqueuer schedules a background retry when synchronous indexing
// fails.
type ReindexEnqueuer interface {
	EnqueueDocumentReindex(payload queue.DocumentReindexPayload) error
}

// WebhookHandler receives crawl lifecycle callbacks from the crawl provider.
// The completed event drives the whole ingestion pipeline; every other event
// type is acknowledged and dropped.
type WebhookHandler struct {
	store   docstore.Store
	crawler crawler.API
	indexer DocumentIndexer
	queue   ReindexEnqueuer
	secret  []byte
}

func NewWebhookHandler(store docstore.Store, crawl crawler.API, indexer DocumentIndexer, q ReindexEnqueuer, secret string) *WebhookHandler {
	return &WebhookHandler{
		store:   store,
		crawler: crawl,
		indexer: indexer,
		queue:   q,
		secret:  []byte(secret),
	}
}

type webhookPayload struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Success  bool   `json:"success"`
	Metadata struct {
		URL string `json:"url"`
	} `json:"metadata"`
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.Validation("unreadable request body"))
		return
	}
	r.Body.Close()

	// The signature covers the raw bytes; nothing gets parsed before the
	// sender is proven to hold the shared secret.
	if !h.verifySignature(r.Header.Get(signatureHeader), body) {
		writeError(w, apperr.Auth("invalid webhook signature"))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, apperr.Validation("malformed webhook payload"))
		return
	}

	if payload.Type != "crawl.completed" {
		slog.Debug("ignoring webhook event", "type", payload.Type, "crawl_job_id", payload.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if payload.ID == "" {
		writeError(w, apperr.Validation("missing crawl id"))
		return
	}

	slog.Info("crawl completed webhook received", "crawl_job_id", payload.ID, "url", payload.Metadata.URL)

	status, err := h.crawler.Status(r.Context(), payload.ID)
	if err != nil {
		writeError(w, apperr.Upstream("crawler", err))
		return
	}

	pages := make([]models.Page, len(status.Pages))
	for i, p := range status.Pages {
		pages[i] = models.Page{URL: p.URL, Title: p.Title, Content: p.Markdown}
	}

	docID, err := h.store.AttachPages(r.Context(), payload.ID, pages)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := h.store.GetDocument(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.indexer.IndexDocument(r.Context(), doc, pages)
	if err == nil {
		err = h.store.MarkIndexed(r.Context(), docID)
	}
	if err != nil {
		slog.Error("synchronous indexing failed, scheduling reindex",
			"document_id", docID, "crawl_job_id", payload.ID, "error", err)
		if h.queue != nil {
			if qErr := h.queue.EnqueueDocumentReindex(queue.DocumentReindexPayload{DocumentID: docID.String()}); qErr != nil {
				slog.Error("failed to schedule reindex", "document_id", docID, "error", qErr)
			}
		}
		writeError(w, apperr.Upstream("indexing", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documentId":  docID,
		"vectorCount": n,
	})
}

func (h *WebhookHandler) verifySignature(header string, body []byte) bool {
	if len(h.secret) == 0 {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
