package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/models"
	"github.com/docsbase/backend/internal/queue"
	"github.com/docsbase/backend/internal/vectorstore"
)

// memStore is an in-memory docstore.Store for handler tests.
type memStore struct {
	docs     map[uuid.UUID]*models.Document
	byJob    map[string]uuid.UUID
	chats    map[uuid.UUID]*models.Chat
	messages []models.Message
	writes   int
}

func newMemStore() *memStore {
	return &memStore{
		docs:  make(map[uuid.UUID]*models.Document),
		byJob: make(map[string]uuid.UUID),
		chats: make(map[uuid.UUID]*models.Chat),
	}
}

func (s *memStore) CreateDocument(ctx context.Context, req docstore.CreateDocumentRequest) (*models.Document, error) {
	s.writes++
	doc := &models.Document{
		ID:         uuid.New(),
		OwnerID:    req.OwnerID,
		URL:        req.URL,
		Name:       req.Name,
		CrawlJobID: req.CrawlJobID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.docs[doc.ID] = doc
	s.byJob[doc.CrawlJobID] = doc.ID
	return doc, nil
}

func (s *memStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc, nil
}

func (s *memStore) GetDocumentByCrawlJob(ctx context.Context, crawlJobID string) (*models.Document, error) {
	id, ok := s.byJob[crawlJobID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return s.docs[id], nil
}

func (s *memStore) ListDocuments(ctx context.Context, ownerID string, includePages bool) ([]models.Document, error) {
	var docs []models.Document
	for _, d := range s.docs {
		if d.OwnerID == ownerID && d.Completed {
			doc := *d
			if !includePages {
				doc.Pages = nil
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *memStore) DeleteDocument(ctx context.Context, id uuid.UUID, ownerID string) error {
	doc, ok := s.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return docstore.ErrNotFound
	}
	s.writes++
	delete(s.docs, id)
	delete(s.byJob, doc.CrawlJobID)
	return nil
}

func (s *memStore) AttachPages(ctx context.Context, crawlJobID string, pages []models.Page) (uuid.UUID, error) {
	id, ok := s.byJob[crawlJobID]
	if !ok {
		return uuid.Nil, fmt.Errorf("no document for crawl job %s: %w", crawlJobID, docstore.ErrNotFound)
	}
	s.writes++
	stored := make([]models.Page, len(pages))
	for i, p := range pages {
		stored[i] = models.Page{URL: p.URL, Title: p.Title}
	}
	doc := s.docs[id]
	doc.Pages = stored
	doc.Completed = true
	return id, nil
}

func (s *memStore) MarkIndexed(ctx context.Context, id uuid.UUID) error {
	doc, ok := s.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	s.writes++
	doc.Indexed = true
	return nil
}

func (s *memStore) ListStaleUnindexed(ctx context.Context, olderThan time.Duration) ([]models.Document, error) {
	return nil, nil
}

func (s *memStore) CreateChat(ctx context.Context, ownerID string, documentID uuid.UUID, title string) (*models.Chat, error) {
	s.writes++
	chat := &models.Chat{ID: uuid.New(), OwnerID: ownerID, DocumentID: documentID, Title: title}
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *memStore) GetChat(ctx context.Context, id uuid.UUID, ownerID string) (*models.Chat, error) {
	chat, ok := s.chats[id]
	if !ok || chat.OwnerID != ownerID {
		return nil, docstore.ErrNotFound
	}
	return chat, nil
}

func (s *memStore) ListChats(ctx context.Context, ownerID string, documentID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	for _, c := range s.chats {
		if c.OwnerID == ownerID && c.DocumentID == documentID {
			chats = append(chats, *c)
		}
	}
	return chats, nil
}

func (s *memStore) CreateMessage(ctx context.Context, req docstore.CreateMessageRequest) (*models.Message, error) {
	s.writes++
	msg := models.Message{
		ID:         uuid.New(),
		ChatID:     req.ChatID,
		DocumentID: req.DocumentID,
		OwnerID:    req.OwnerID,
		Role:       req.Role,
		Parts:      req.Parts,
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) ListMessages(ctx context.Context, chatID uuid.UUID, ownerID string) ([]models.Message, error) {
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID && m.OwnerID == ownerID {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// stubCrawler is a scripted crawler.API.
type stubCrawler struct {
	jobID    string
	startErr error
	status   *crawler.JobStatus
	events   []crawler.Event
}

func (c *stubCrawler) StartCrawl(ctx context.Context, url string) (string, error) {
	if c.startErr != nil {
		return "", c.startErr
	}
	return c.jobID, nil
}

func (c *stubCrawler) Status(ctx context.Context, id string) (*crawler.JobStatus, error) {
	if c.status == nil {
		return nil, fmt.Errorf("no status for job %s", id)
	}
	return c.status, nil
}

func (c *stubCrawler) Watch(ctx context.Context, id string) <-chan crawler.Event {
	ch := make(chan crawler.Event, len(c.events))
	for _, evt := range c.events {
		ch <- evt
	}
	close(ch)
	return ch
}

// memIndex is an in-memory vectorstore.Index.
type memIndex struct {
	records map[string]vectorstore.Record
}

func newMemIndex() *memIndex {
	return &memIndex{records: make(map[string]vectorstore.Record)}
}

func (m *memIndex) Upsert(ctx context.Context, records []vectorstore.Record) error {
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memIndex) FetchByIDs(ctx context.Context, ids []string) ([]vectorstore.Record, error) {
	var out []vectorstore.Record
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memIndex) Query(ctx context.Context, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.Match, error) {
	var matches []vectorstore.Match
	for _, r := range m.records {
		if r.CrawlJobID == opts.CrawlJobID {
			matches = append(matches, vectorstore.Match{
				ID: r.ID, CrawlJobID: r.CrawlJobID, URL: r.URL, Title: r.Title, Snippet: r.Snippet,
			})
		}
	}
	return matches, nil
}

func (m *memIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	for id, r := range m.records {
		if r.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

// stubEmbedder returns fixed-size vectors.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// stubQueue records reindex requests.
type stubQueue struct {
	enqueued []queue.DocumentReindexPayload
}

func (q *stubQueue) EnqueueDocumentReindex(payload queue.DocumentReindexPayload) error {
	q.enqueued = append(q.enqueued, payload)
	return nil
}
