package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document maps 1:1 to one crawl job. Pages are attached exactly once, by the
// completion webhook; until Completed is true they must not be treated as
// final. Indexed flips only after the vector pipeline has succeeded.
type Document struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    string    `json:"owner_id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	CrawlJobID string    `json:"crawl_job_id"`
	Completed  bool      `json:"completed"`
	Indexed    bool      `json:"indexed"`
	Pages      []Page    `json:"pages,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is immutable once written. Raw content survives only long enough to
// be chunked; retrieval works off the bounded snippets stored with vectors.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chat is created lazily, once the first assistant turn has derived a title.
type Chat struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    string    `json:"owner_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID         uuid.UUID       `json:"id"`
	ChatID     uuid.UUID       `json:"chat_id"`
	DocumentID uuid.UUID       `json:"document_id"`
	OwnerID    string          `json:"owner_id"`
	Role       string          `json:"role"`
	Parts      json.RawMessage `json:"parts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
