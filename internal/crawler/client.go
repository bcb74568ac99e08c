package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docsbase/backend/internal/config"
)

// API is the narrow surface the rest of the service needs from the external
// crawl provider: start a job, fetch its state, and watch it to completion.
type API interface {
	StartCrawl(ctx context.Context, url string) (string, error)
	Status(ctx context.Context, id string) (*JobStatus, error)
	Watch(ctx context.Context, id string) <-chan Event
}

// Page is one crawled page as returned by the provider.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// JobStatus is a snapshot of a crawl job. Pages grows monotonically while the
// job is scraping; it is final once Status is "completed".
type JobStatus struct {
	Status      string
	Total       int
	Completed   int
	CreditsUsed int
	Pages       []Page
}

const (
	JobScraping  = "scraping"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Client talks to the Firecrawl REST API.
type Client struct {
	baseURL      string
	apiKey       string
	webhookURL   string
	pageLimit    int
	pollInterval time.Duration
	watchTimeout time.Duration
	httpClient   *http.Client
}

func NewClient(cfg config.CrawlerConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		webhookURL:   cfg.WebhookURL,
		pageLimit:    cfg.PageLimit,
		pollInterval: cfg.PollInterval,
		watchTimeout: cfg.WatchTimeout,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type startCrawlRequest struct {
	URL           string         `json:"url"`
	Limit         int            `json:"limit"`
	Sitemap       string         `json:"sitemap"`
	ScrapeOptions scrapeOptions  `json:"scrapeOptions"`
	Webhook       *webhookConfig `json:"webhook,omitempty"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type webhookConfig struct {
	URL      string            `json:"url"`
	Events   []string          `json:"events"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type startCrawlResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// StartCrawl kicks off a markdown crawl of url with completion delivered to
// the configured webhook, and returns the provider's job id.
func (c *Client) StartCrawl(ctx context.Context, url string) (string, error) {
	reqBody := startCrawlRequest{
		URL:     url,
		Limit:   c.pageLimit,
		Sitemap: "skip",
		ScrapeOptions: scrapeOptions{
			Formats: []string{"markdown"},
		},
	}
	if c.webhookURL != "" {
		reqBody.Webhook = &webhookConfig{
			URL:      c.webhookURL,
			Events:   []string{"completed", "started", "page", "failed"},
			Metadata: map[string]string{"url": url},
		}
	}

	var resp startCrawlResponse
	if err := c.post(ctx, "/v1/crawl", reqBody, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.ID == "" {
		return "", fmt.Errorf("start crawl: provider rejected request: %s", resp.Error)
	}
	return resp.ID, nil
}

type crawlStatusResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	CreditsUsed int    `json:"creditsUsed"`
	Error       string `json:"error"`
	Data        []struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			SourceURL string `json:"sourceURL"`
			Title     string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
}

// Status fetches the job snapshot, including all pages scraped so far.
func (c *Client) Status(ctx context.Context, id string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/crawl/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl status %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("crawl status %s: provider returned %s", id, resp.Status)
	}

	var body crawlStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("crawl status %s: decode: %w", id, err)
	}

	status := &JobStatus{
		Status:      body.Status,
		Total:       body.Total,
		Completed:   body.Completed,
		CreditsUsed: body.CreditsUsed,
	}
	for _, d := range body.Data {
		status.Pages = append(status.Pages, Page{
			URL:      d.Metadata.SourceURL,
			Title:    d.Metadata.Title,
			Markdown: d.Markdown,
		})
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("POST %s: %s", path, msg)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
