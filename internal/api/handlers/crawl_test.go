package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docsbase/backend/internal/auth"
	"github.com/docsbase/backend/internal/crawler"
)

func postCrawl(h *CrawlHandler, owner, targetURL string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"url": targetURL})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/crawl", bytes.NewReader(body))
	req = req.WithContext(auth.WithOwner(context.Background(), owner))
	rec := httptest.NewRecorder()
	h.Start(rec, req)
	return rec
}

func sseFrames(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for _, raw := range strings.Split(body, "\n\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		payload := strings.TrimPrefix(raw, "data: ")
		var frame map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestStartCrawlRejectsInvalidURL(t *testing.T) {
	store := newMemStore()
	h := NewCrawlHandler(store, &stubCrawler{jobID: "job-1"})

	for _, target := range []string{"", "ftp://docs.example.com", "not a url", "https://"} {
		rec := postCrawl(h, "owner-1", target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("url %q: status = %d, want 400", target, rec.Code)
		}
	}
	if len(store.docs) != 0 {
		t.Fatalf("documents created for invalid urls")
	}
}

func TestStartCrawlRejectsUnreachableURL(t *testing.T) {
	store := newMemStore()
	h := NewCrawlHandler(store, &stubCrawler{jobID: "job-1"})

	// Nothing listens on port 1.
	rec := postCrawl(h, "owner-1", "http://127.0.0.1:1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unreachable target", rec.Code)
	}
	if len(store.docs) != 0 {
		t.Fatalf("document created for unreachable url")
	}
}

func TestStartCrawlRelaysProgress(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	store := newMemStore()
	crawl := &stubCrawler{
		jobID: "job-9",
		events: []crawler.Event{
			{Type: crawler.EventDocument, Page: &crawler.Page{URL: target.URL + "/a", Title: "A", Markdown: "alpha"}},
			{Type: crawler.EventDocument, Page: &crawler.Page{URL: target.URL + "/b", Title: "B", Markdown: "beta"}},
			{Type: crawler.EventDone, Total: 2, Completed: 2, CreditsUsed: 2},
		},
	}
	h := NewCrawlHandler(store, crawl)

	rec := postCrawl(h, "owner-1", target.URL)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	frames := sseFrames(t, rec.Body.String())
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want started + 2 documents + done:\n%s", len(frames), rec.Body.String())
	}
	if frames[0]["type"] != "started" || frames[0]["crawlId"] != "job-9" {
		t.Fatalf("first frame = %v, want started with crawl id", frames[0])
	}
	if frames[0]["documentId"] == nil || frames[0]["documentId"] == "" {
		t.Fatalf("started frame missing documentId: %v", frames[0])
	}
	if frames[0]["url"] != target.URL || frames[0]["name"] == "" {
		t.Fatalf("started frame missing url/name: %v", frames[0])
	}
	if frames[1]["type"] != "document" || frames[1]["title"] != "A" {
		t.Fatalf("second frame = %v, want first document", frames[1])
	}
	if frames[1]["content"] != "alpha" {
		t.Fatalf("document frame content = %v, want page markdown", frames[1]["content"])
	}
	if frames[1]["createdAt"] == nil || frames[1]["updatedAt"] == nil {
		t.Fatalf("document frame missing timestamps: %v", frames[1])
	}
	if frames[3]["type"] != "done" || frames[3]["total"] != float64(2) || frames[3]["completed"] != float64(2) {
		t.Fatalf("last frame = %v, want done with total and completed 2", frames[3])
	}

	if len(store.docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(store.docs))
	}
	for _, doc := range store.docs {
		if doc.CrawlJobID != "job-9" || doc.OwnerID != "owner-1" {
			t.Fatalf("document = %+v", doc)
		}
	}
}

func TestStartCrawlRelaysFailure(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	crawl := &stubCrawler{
		jobID:  "job-10",
		events: []crawler.Event{{Type: crawler.EventError, Err: context.DeadlineExceeded}},
	}
	h := NewCrawlHandler(newMemStore(), crawl)

	rec := postCrawl(h, "owner-1", target.URL)
	frames := sseFrames(t, rec.Body.String())
	last := frames[len(frames)-1]
	if last["type"] != "error" || last["error"] == "" {
		t.Fatalf("last frame = %v, want error", last)
	}
}

func TestExtractNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://docs.example.com/guide":  "docs.example.com",
		"https://www.example.com":         "example.com",
		"http://api.internal.example.io/": "api.internal.example.io",
	}
	for in, want := range cases {
		if got := extractNameFromURL(in); got != want {
			t.Errorf("extractNameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
