package metastore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Store wraps a sql.DB holding documents, image assets and content units.
// It is the relational side of the index; vectors live in the vector index
// and are joined back by unit id at query time.
type Store struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite metadata store at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metastore directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening metastore: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging metastore: %w", err)
	}

	s := &Store{DB: sqlDB, path: path}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// memSeq disambiguates shared-cache in-memory databases so every
// OpenMemory call gets its own store even within one process.
var memSeq atomic.Int64

// OpenMemory creates an in-memory store (useful for testing). The
// database uses a shared cache so all pooled connections see the same
// data.
func OpenMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", memSeq.Add(1))
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory metastore: %w", err)
	}

	s := &Store{DB: sqlDB, path: ":memory:"}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// migrate runs all schema migrations.
func (s *Store) migrate() error {
	_, err := s.Exec(schema)
	return err
}

// schema contains the full metadata schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    doc_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    file_path TEXT NOT NULL,
    total_pages INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL,
    ingested_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(file_path);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

CREATE TABLE IF NOT EXISTS image_assets (
    image_id TEXT PRIMARY KEY,
    doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    bbox_x1 REAL NOT NULL DEFAULT 0,
    bbox_y1 REAL NOT NULL DEFAULT 0,
    bbox_x2 REAL NOT NULL DEFAULT 0,
    bbox_y2 REAL NOT NULL DEFAULT 0,
    image_path TEXT NOT NULL,
    auto_caption TEXT NOT NULL DEFAULT '',
    image_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_images_doc ON image_assets(doc_id, page_number);

CREATE TABLE IF NOT EXISTS content_units (
    unit_id TEXT PRIMARY KEY,
    doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    section_path TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    unit_type TEXT NOT NULL CHECK(unit_type IN ('TEXT_ONLY','IMAGE_WITH_CONTEXT')),
    image_id TEXT REFERENCES image_assets(image_id) ON DELETE SET NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    tags TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_units_doc ON content_units(doc_id, page_number);
CREATE INDEX IF NOT EXISTS idx_units_section ON content_units(doc_id, section_path);
`
