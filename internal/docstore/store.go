package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/docsbase/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

type CreateDocumentRequest struct {
	OwnerID    string
	URL        string
	Name       string
	CrawlJobID string
}

type CreateMessageRequest struct {
	ChatID     uuid.UUID
	DocumentID uuid.UUID
	OwnerID    string
	Role       string
	Parts      json.RawMessage
}

// Store is the document-collection collaborator: atomic reads and patches
// keyed by id or by crawl job id. The completion patch is keyed by crawl job
// id because the webhook only knows the provider's job id.
type Store interface {
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetDocumentByCrawlJob(ctx context.Context, crawlJobID string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID string, includePages bool) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID, ownerID string) error

	// AttachPages writes the final page set and flips completed in a single
	// update. Page content is not retained; only titles/urls survive in the
	// document record while chunk snippets live in the vector index.
	AttachPages(ctx context.Context, crawlJobID string, pages []models.Page) (uuid.UUID, error)
	MarkIndexed(ctx context.Context, id uuid.UUID) error
	ListStaleUnindexed(ctx context.Context, olderThan time.Duration) ([]models.Document, error)

	CreateChat(ctx context.Context, ownerID string, documentID uuid.UUID, title string) (*models.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID, ownerID string) (*models.Chat, error)
	ListChats(ctx context.Context, ownerID string, documentID uuid.UUID) ([]models.Chat, error)
	CreateMessage(ctx context.Context, req CreateMessageRequest) (*models.Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, ownerID string) ([]models.Message, error)
}
