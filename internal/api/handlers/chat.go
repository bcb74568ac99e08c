package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsbase/backend/internal/api/stream"
	"github.com/docsbase/backend/internal/apperr"
	"github.com/docsbase/backend/internal/auth"
	"github.com/docsbase/backend/internal/cache"
	"github.com/docsbase/backend/internal/chat"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/llm"
	"github.com/docsbase/backend/internal/models"
)

const docCacheTTL = 5 * time.Minute

// ChatHandler answers questions about an indexed document over SSE.
type ChatHandler struct {
	responder *chat.Responder
	store     docstore.Store
	cache     *cache.Cache
}

func NewChatHandler(responder *chat.Responder, store docstore.Store, c *cache.Cache) *ChatHandler {
	return &ChatHandler{responder: responder, store: store, cache: c}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	CrawlJobID    string        `json:"crawlJobId"`
	ChatID        uuid.UUID     `json:"chatId,omitempty"`
	Messages      []chatMessage `json:"messages"`
	SearchEnabled bool          `json:"isSearchEnabled,omitempty"`
}

func (h *ChatHandler) Respond(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if strings.TrimSpace(req.CrawlJobID) == "" {
		writeError(w, apperr.Validation("crawlJobId is required"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, apperr.Validation("messages are required"))
		return
	}

	doc, err := h.resolveDocument(r.Context(), req.CrawlJobID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Ownership failures look identical to missing documents.
	if doc.OwnerID != owner {
		writeError(w, docstore.ErrNotFound)
		return
	}

	messages := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	events, err := h.responder.Respond(r.Context(), chat.Request{
		OwnerID:       owner,
		Doc:           doc,
		ChatID:        req.ChatID,
		Messages:      messages,
		SearchEnabled: req.SearchEnabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	sse, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sse.Close()

	for evt := range events {
		var sendErr error
		switch evt.Type {
		case chat.EventNotification:
			sendErr = sse.Send(map[string]interface{}{
				"type":   "data-notification",
				"chatId": evt.ChatID,
				"title":  evt.Title,
			})
		case chat.EventToken:
			sendErr = sse.Send(map[string]interface{}{
				"type":    "token",
				"content": evt.Token,
			})
		case chat.EventDone:
			sendErr = sse.Send(map[string]interface{}{
				"type":   "done",
				"chatId": evt.ChatID,
			})
		case chat.EventError:
			sendErr = sse.Send(map[string]interface{}{
				"type":  "error",
				"error": evt.Err.Error(),
			})
		}
		if sendErr != nil {
			slog.Info("chat stream client disconnected", "crawl_job_id", req.CrawlJobID)
			return
		}
	}
}

// resolveDocument looks up the document for a crawl job, fronted by the redis
// cache. Any cache error is a miss; Postgres is the source of truth.
func (h *ChatHandler) resolveDocument(ctx context.Context, crawlJobID string) (*models.Document, error) {
	key := "doc:job:" + crawlJobID

	if h.cache != nil {
		var cached models.Document
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	doc, err := h.store.GetDocumentByCrawlJob(ctx, crawlJobID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, doc, docCacheTTL); err != nil {
			slog.Warn("document cache write failed", "crawl_job_id", crawlJobID, "error", err)
		}
	}
	return doc, nil
}
