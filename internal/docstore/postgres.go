package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsbase/backend/internal/models"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const docColumns = "id, owner_id, url, name, crawl_job_id, completed, indexed, pages, created_at, updated_at"

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var pagesJSON []byte
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.URL, &doc.Name, &doc.CrawlJobID, &doc.Completed, &doc.Indexed, &pagesJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(pagesJSON) > 0 {
		if err := json.Unmarshal(pagesJSON, &doc.Pages); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
	}
	return &doc, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, owner_id, url, name, crawl_job_id, completed, indexed, pages)
		 VALUES ($1, $2, $3, $4, $5, false, false, '[]'::jsonb)
		 RETURNING `+docColumns,
		uuid.New(), req.OwnerID, req.URL, req.Name, req.CrawlJobID,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (s *PostgresStore) GetDocumentByCrawlJob(ctx context.Context, crawlJobID string) (*models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE crawl_job_id = $1`, crawlJobID)
	return scanDocument(row)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string, includePages bool) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+docColumns+` FROM documents
		 WHERE owner_id = $1 AND completed = true
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if !includePages {
			doc.Pages = nil
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID, ownerID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Messages first, then chats, then the document itself.
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE document_id = $1 AND owner_id = $2`, id, ownerID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chats WHERE document_id = $1 AND owner_id = $2`, id, ownerID); err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) AttachPages(ctx context.Context, crawlJobID string, pages []models.Page) (uuid.UUID, error) {
	// Raw page content is not persisted; it only exists in flight long enough
	// to be chunked and embedded.
	stored := make([]models.Page, len(pages))
	for i, p := range pages {
		stored[i] = models.Page{
			URL:       p.URL,
			Title:     p.Title,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
	}

	pagesJSON, err := json.Marshal(stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode pages: %w", err)
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx,
		`UPDATE documents
		 SET pages = $2, completed = true, updated_at = now()
		 WHERE crawl_job_id = $1
		 RETURNING id`,
		crawlJobID, pagesJSON,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("no document for crawl job %s: %w", crawlJobID, ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("attach pages: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) MarkIndexed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE documents SET indexed = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListStaleUnindexed(ctx context.Context, olderThan time.Duration) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+docColumns+` FROM documents
		 WHERE completed = true AND indexed = false AND updated_at < now() - $1::interval
		 ORDER BY updated_at ASC`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale unindexed: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) CreateChat(ctx context.Context, ownerID string, documentID uuid.UUID, title string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.QueryRow(ctx,
		`INSERT INTO chats (id, owner_id, document_id, title)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, owner_id, document_id, title, created_at, updated_at`,
		uuid.New(), ownerID, documentID, title,
	).Scan(&chat.ID, &chat.OwnerID, &chat.DocumentID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID, ownerID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, document_id, title, created_at, updated_at
		 FROM chats WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&chat.ID, &chat.OwnerID, &chat.DocumentID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, ownerID string, documentID uuid.UUID) ([]models.Chat, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, document_id, title, created_at, updated_at
		 FROM chats WHERE owner_id = $1 AND document_id = $2
		 ORDER BY created_at DESC`,
		ownerID, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.DocumentID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, req CreateMessageRequest) (*models.Message, error) {
	var msg models.Message
	err := s.db.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, document_id, owner_id, role, parts)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, chat_id, document_id, owner_id, role, parts, created_at, updated_at`,
		uuid.New(), req.ChatID, req.DocumentID, req.OwnerID, req.Role, req.Parts,
	).Scan(&msg.ID, &msg.ChatID, &msg.DocumentID, &msg.OwnerID, &msg.Role, &msg.Parts, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID uuid.UUID, ownerID string) ([]models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, chat_id, document_id, owner_id, role, parts, created_at, updated_at
		 FROM messages WHERE chat_id = $1 AND owner_id = $2
		 ORDER BY created_at ASC`,
		chatID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.DocumentID, &m.OwnerID, &m.Role, &m.Parts, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
