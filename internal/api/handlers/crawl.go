package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/docsbase/backend/internal/api/stream"
	"github.com/docsbase/backend/internal/apperr"
	"github.com/docsbase/backend/internal/auth"
	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
)

// CrawlHandler starts documentation crawls and relays their progress to the
// caller as a server-sent event stream.
type CrawlHandler struct {
	store   docstore.Store
	crawler crawler.API
	probe   *http.Client
}

func NewCrawlHandler(store docstore.Store, crawl crawler.API) *CrawlHandler {
	return &CrawlHandler{
		store:   store,
		crawler: crawl,
		probe:   &http.Client{Timeout: 5 * time.Second},
	}
}

type startCrawlRequest struct {
	URL string `json:"url"`
}

// Start validates the target, kicks off the crawl, records the document, and
// then holds the connection open relaying watcher events until the crawl
// reaches a terminal state.
func (h *CrawlHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())

	var req startCrawlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	target := strings.TrimSpace(req.URL)
	if err := h.validateTarget(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}

	jobID, err := h.crawler.StartCrawl(r.Context(), target)
	if err != nil {
		writeError(w, apperr.Upstream("crawler", err))
		return
	}

	doc, err := h.store.CreateDocument(r.Context(), docstore.CreateDocumentRequest{
		OwnerID:    owner,
		URL:        target,
		Name:       extractNameFromURL(target),
		CrawlJobID: jobID,
	})
	if err != nil {
		writeError(w, fmt.Errorf("create document: %w", err))
		return
	}

	sse, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sse.Close()

	sse.Send(map[string]interface{}{
		"type":       "started",
		"crawlId":    jobID,
		"documentId": doc.ID,
		"url":        doc.URL,
		"name":       doc.Name,
	})

	for evt := range h.crawler.Watch(r.Context(), jobID) {
		switch evt.Type {
		case crawler.EventDocument:
			now := time.Now().UTC()
			err = sse.Send(map[string]interface{}{
				"type":      "document",
				"url":       evt.Page.URL,
				"title":     evt.Page.Title,
				"content":   evt.Page.Markdown,
				"createdAt": now,
				"updatedAt": now,
			})
		case crawler.EventDone:
			err = sse.Send(map[string]interface{}{
				"type":        "done",
				"total":       evt.Total,
				"completed":   evt.Completed,
				"creditsUsed": evt.CreditsUsed,
			})
		case crawler.EventError:
			err = sse.Send(map[string]interface{}{
				"type":  "error",
				"error": evt.Err.Error(),
			})
		}
		if err != nil {
			// Client is gone; the crawl itself continues server-side and the
			// webhook still lands.
			slog.Info("crawl progress stream client disconnected", "crawl_job_id", jobID)
			return
		}
	}
}

var hostPattern = regexp.MustCompile(`^([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)

// validateTarget rejects anything that is not a well-formed, reachable
// http(s) URL. Reachability is a cheap HEAD probe so a typo fails fast
// instead of burning crawl credits.
func (h *CrawlHandler) validateTarget(ctx context.Context, target string) error {
	if target == "" {
		return apperr.Validation("url is required")
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("url must be a valid http(s) address")
	}
	if !hostPattern.MatchString(u.Hostname()) && net.ParseIP(u.Hostname()) == nil {
		return apperr.Validation("url host is not a valid domain")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return apperr.Validation("url is not a valid http(s) address")
	}
	resp, err := h.probe.Do(req)
	if err != nil {
		return apperr.Validation("url is not reachable")
	}
	resp.Body.Close()
	return nil
}

func extractNameFromURL(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "" {
		return target
	}
	return host
}
