package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PgVectorIndex struct {
	db *pgxpool.Pool
}

func NewPgVectorIndex(db *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (s *PgVectorIndex) Upsert(ctx context.Context, records []Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		embedding := pgvector.NewVector(r.Embedding)

		_, err := tx.Exec(ctx,
			`INSERT INTO vector_records (id, crawl_job_id, document_id, page_index, chunk_index, chunk_count, url, title, snippet, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET crawl_job_id = $2, url = $7, title = $8, snippet = $9, embedding = $10`,
			r.ID, r.CrawlJobID, r.DocumentID, r.PageIndex, r.ChunkIndex, r.ChunkCount, r.URL, r.Title, r.Snippet, embedding,
		)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorIndex) FetchByIDs(ctx context.Context, ids []string) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, crawl_job_id, document_id, page_index, chunk_index, chunk_count, url, title, snippet
		 FROM vector_records WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch by ids: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CrawlJobID, &r.DocumentID, &r.PageIndex, &r.ChunkIndex, &r.ChunkCount, &r.URL, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PgVectorIndex) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	embedding := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx,
		`SELECT id, crawl_job_id, url, title, snippet,
		        1 - (embedding <=> $1) AS score
		 FROM vector_records
		 WHERE crawl_job_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		embedding, opts.CrawlJobID, opts.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.CrawlJobID, &m.URL, &m.Title, &m.Snippet, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PgVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM vector_records WHERE document_id = $1", documentID)
	return err
}
