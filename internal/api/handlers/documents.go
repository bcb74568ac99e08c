package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docsbase/backend/internal/apperr"
	"github.com/docsbase/backend/internal/auth"
	"github.com/docsbase/backend/internal/cache"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/vectorstore"
)

// DocumentHandler exposes the crawled-document catalog: listing, inspection
// and deletion, plus each document's chats and transcripts.
type DocumentHandler struct {
	store docstore.Store
	index vectorstore.Index
	cache *cache.Cache
}

func NewDocumentHandler(store docstore.Store, index vectorstore.Index, c *cache.Cache) *DocumentHandler {
	return &DocumentHandler{store: store, index: index, cache: c}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	includePages, _ := strconv.ParseBool(r.URL.Query().Get("includePages"))

	docs, err := h.store.ListDocuments(r.Context(), owner, includePages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("invalid document id"))
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc.OwnerID != owner {
		writeError(w, docstore.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete removes the document, its chats and messages, and its vectors. The
// vector cleanup is best effort: orphaned vectors are unreachable anyway
// because retrieval is scoped by crawl job id.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("invalid document id"))
		return
	}

	if err := h.store.DeleteDocument(r.Context(), id, owner); err != nil {
		writeError(w, err)
		return
	}

	if err := h.index.DeleteByDocument(r.Context(), id.String()); err != nil {
		slog.Warn("vector cleanup failed", "document_id", id, "error", err)
	}
	if h.cache != nil {
		if err := h.cache.Delete(r.Context(), "doc:"+id.String()); err != nil {
			slog.Warn("document cache invalidation failed", "document_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *DocumentHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("invalid document id"))
		return
	}

	chats, err := h.store.ListChats(r.Context(), owner, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": chats, "count": len(chats)})
}

func (h *DocumentHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, apperr.Validation("invalid chat id"))
		return
	}

	if _, err := h.store.GetChat(r.Context(), chatID, owner); err != nil {
		writeError(w, err)
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), chatID, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs, "count": len(msgs)})
}
