package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id         TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	size_bytes     BIGINT NOT NULL DEFAULT 0,
	mod_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
	content_digest TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	pages_ok       INT NOT NULL DEFAULT 0,
	pages_failed   INT NOT NULL DEFAULT 0,
	engine         TEXT NOT NULL DEFAULT '',
	last_error     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_state_idx ON documents (state);
`

// Postgres is a PostgreSQL-backed Catalog.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgres connects to PostgreSQL and ensures the documents table exists.
func NewPostgres(cfg config.PostgresConfig) (*Postgres, error) {
	client, err := postgres.New(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := client.DB.Exec(schema); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensuring catalog schema: %w", err)
	}
	return &Postgres{
		db:     client,
		logger: logger.WithComponent("catalog"),
	}, nil
}

func (p *Postgres) Upsert(ctx context.Context, rec Record) error {
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents
				(doc_id, source, size_bytes, mod_time, content_digest, state,
				 pages_ok, pages_failed, engine, last_error, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (doc_id) DO UPDATE SET
				source = EXCLUDED.source,
				size_bytes = EXCLUDED.size_bytes,
				mod_time = EXCLUDED.mod_time,
				content_digest = EXCLUDED.content_digest,
				state = EXCLUDED.state,
				pages_ok = EXCLUDED.pages_ok,
				pages_failed = EXCLUDED.pages_failed,
				engine = EXCLUDED.engine,
				last_error = EXCLUDED.last_error,
				updated_at = now()`,
			rec.DocID, rec.Source, rec.Size, rec.ModTime, rec.ContentDigest,
			string(rec.State), rec.PagesOK, rec.PagesFailed, rec.Engine, rec.LastError)
		if err != nil {
			return fmt.Errorf("upserting document %s: %w", rec.DocID, err)
		}
		return nil
	})
}

func (p *Postgres) SetState(ctx context.Context, docID string, state document.State, errMsg string) error {
	result, err := p.db.DB.ExecContext(ctx,
		`UPDATE documents SET state=$2, last_error=$3, updated_at=now() WHERE doc_id=$1`,
		docID, string(state), errMsg)
	if err != nil {
		return fmt.Errorf("updating state for %s: %w", docID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		_, err := p.db.DB.ExecContext(ctx,
			`INSERT INTO documents (doc_id, source, state, last_error) VALUES ($1, '', $2, $3)
			ON CONFLICT (doc_id) DO NOTHING`,
			docID, string(state), errMsg)
		if err != nil {
			return fmt.Errorf("inserting state for %s: %w", docID, err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, docID string) (Record, bool, error) {
	rec, err := scanRecord(p.db.DB.QueryRowContext(ctx,
		`SELECT doc_id, source, size_bytes, mod_time, content_digest, state,
			pages_ok, pages_failed, engine, last_error, created_at, updated_at
		FROM documents WHERE doc_id=$1`, docID))
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("querying document %s: %w", docID, err)
	}
	return rec, true, nil
}

func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT doc_id, source, size_bytes, mod_time, content_digest, state,
			pages_ok, pages_failed, engine, last_error, created_at, updated_at
		FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return recs, nil
}

func (p *Postgres) Delete(ctx context.Context, docID string) error {
	if _, err := p.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE doc_id=$1`, docID); err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var state string
	err := s.Scan(&rec.DocID, &rec.Source, &rec.Size, &rec.ModTime,
		&rec.ContentDigest, &state, &rec.PagesOK, &rec.PagesFailed,
		&rec.Engine, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.State = document.State(state)
	return rec, nil
}
