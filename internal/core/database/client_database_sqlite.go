package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// SQLiteClient is the default single-file store for messages and documents.
type SQLiteClient struct {
	db *sql.DB
}

var _ core.DbClient = (*SQLiteClient)(nil)

// NewSQLiteClient opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteClient(ctx context.Context, path string) (*SQLiteClient, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := EnsureBootstrapped(ctx, db, sqliteDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

// SQLitePath extracts the file path from a sqlite:// URL.
func SQLitePath(databaseURL string) string {
	p := strings.TrimPrefix(databaseURL, "sqlite://")
	p = strings.TrimPrefix(p, "sqlite:")
	if p == "" {
		return ":memory:"
	}
	return p
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *SQLiteClient) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO messages (thread_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		msg.ThreadID, msg.Role, msg.Content, formatTime(msg.Timestamp))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (c *SQLiteClient) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, timestamp FROM messages WHERE thread_id = ? ORDER BY id ASC`,
		threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			m  models.Message
			ts string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = parseTime(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *SQLiteClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, file_name, storage_url, content_type, index_ref, status, pages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FileName, doc.StorageURL, doc.ContentType, doc.IndexRef, doc.Status, doc.Pages,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	return err
}

const sqliteDocumentColumns = `id, file_name, storage_url, content_type, index_ref, status, pages, created_at, updated_at`

func scanDocument(s interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d                models.Document
		created, updated string
	)
	if err := s.Scan(&d.ID, &d.FileName, &d.StorageURL, &d.ContentType, &d.IndexRef, &d.Status, &d.Pages, &created, &updated); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return &d, nil
}

func (c *SQLiteClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+sqliteDocumentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDocumentNotFound
	}
	return d, err
}

func (c *SQLiteClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+sqliteDocumentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *SQLiteClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

func (c *SQLiteClient) SetDocumentIndexRef(ctx context.Context, id string, ref string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET index_ref = ?, updated_at = ? WHERE id = ?`,
		ref, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}

func (c *SQLiteClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return nil
}
