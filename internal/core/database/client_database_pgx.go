package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// PostgresClient stores messages and documents in Postgres and doubles as
// a pgvector-backed chunk store.
type PostgresClient struct {
	db *sql.DB
}

var (
	_ core.DbClient    = (*PostgresClient)(nil)
	_ core.VectorStore = (*PostgresClient)(nil)
)

func NewPostgresClient(ctx context.Context, cfg *config.Config) (*PostgresClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Messages

func (c *PostgresClient) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	const q = `
		INSERT INTO messages (thread_id, role, content, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return c.db.QueryRowContext(ctx, q, msg.ThreadID, msg.Role, msg.Content, msg.Timestamp).Scan(&msg.ID)
}

func (c *PostgresClient) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	const q = `
		SELECT id, thread_id, role, content, timestamp
		FROM messages
		WHERE thread_id = $1
		ORDER BY id ASC
	`
	rows, err := c.db.QueryContext(ctx, q, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Documents

func (c *PostgresClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, storage_url, content_type, index_ref, status, pages, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), COALESCE($9, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.StorageURL, doc.ContentType, doc.IndexRef, doc.Status, doc.Pages,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt))
	return err
}

func (c *PostgresClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, content_type, index_ref, status, pages, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.StorageURL, &d.ContentType, &d.IndexRef, &d.Status, &d.Pages, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *PostgresClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, content_type, index_ref, status, pages, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.StorageURL, &d.ContentType, &d.IndexRef, &d.Status, &d.Pages, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *PostgresClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

func (c *PostgresClient) SetDocumentIndexRef(ctx context.Context, id string, ref string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET index_ref = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

func (c *PostgresClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

// Chunks (pgvector)

// Upsert inserts chunks in a single transaction, replacing rows with the same id.
func (c *PostgresClient) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		ON CONFLICT (id) DO UPDATE
			SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, token_count = EXCLUDED.token_count
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Position, ch.Text, vec, ch.TokenCount, nullTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// Search finds the top-k chunks by cosine distance across all documents.
func (c *PostgresClient) Search(ctx context.Context, query []float32, k int) ([]models.Passage, error) {
	const q = `
		SELECT ch.document_id, d.file_name, ch.text, ch.embedding <=> $1 AS distance
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		ORDER BY ch.embedding <=> $1
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Passage
	for rows.Next() {
		var (
			p    models.Passage
			dist float64
		)
		if err := rows.Scan(&p.DocumentID, &p.Source, &p.Text, &dist); err != nil {
			return nil, err
		}
		p.Score = 1 - dist
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var n int
		if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM document_chunks`).Scan(&n); err == nil && n == 0 {
			return nil, core.ErrIndexNotFound
		}
	}
	return out, nil
}

func (c *PostgresClient) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *PostgresClient) Stats(ctx context.Context) (*core.IndexStats, error) {
	st := &core.IndexStats{Backend: config.BackendPGVector}
	err := c.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT document_id), count(*) FROM document_chunks`,
	).Scan(&st.Documents, &st.Chunks)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
