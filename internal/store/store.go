// Package store is the embedded relational persistence layer (C1):
// messages, memory facts, summaries, code symbols, operations and
// their event log, budget records, and the audit log all live in one
// SQLite-class database. The Vector Index (internal/vectorindex) is an
// index of this store, never the other way around.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Config configures the embedded store.
type Config struct {
	// Path to the SQLite database file. ":memory:" opens an in-process
	// database useful for tests.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible single-node defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "mira.db",
		MaxOpenConns:    1, // sqlite write serialization: one writer connection is simplest and correct
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// Store wraps the embedded database connection.
type Store struct {
	db *sql.DB
}

// DB exposes the underlying connection for callers (e.g. the vector
// index) that want to share the same SQLite file.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (creating if necessary) the embedded store and applies
// the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// beginImmediate starts a transaction using SQLite's BEGIN IMMEDIATE,
// which takes the write lock up front instead of on first write. Used
// for read-modify-write sequences (spec §5) where two writers racing
// on a deferred transaction could otherwise both proceed past the read
// before either commits.
func (s *Store) beginImmediate(ctx context.Context) (*sql.Tx, error) {
	if _, err := s.db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_call_id TEXT,
	tool_name TEXT,
	embedded INTEGER NOT NULL DEFAULT 0,
	summarized INTEGER NOT NULL DEFAULT 0,
	provenance TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS memory_facts (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	key TEXT,
	content TEXT NOT NULL,
	fact_type TEXT NOT NULL,
	category TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	suspicious INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_facts_key ON memory_facts(project_id, key) WHERE key IS NOT NULL AND key != '';
CREATE INDEX IF NOT EXISTS idx_memory_facts_status ON memory_facts(status, suspicious);

CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	level INTEGER NOT NULL,
	text TEXT NOT NULL,
	message_range_start INTEGER NOT NULL,
	message_range_end INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS code_symbols (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	name TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	symbol_type TEXT NOT NULL,
	language TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	signature TEXT,
	visibility TEXT,
	documentation TEXT,
	is_test INTEGER NOT NULL DEFAULT 0,
	is_async INTEGER NOT NULL DEFAULT 0,
	complexity INTEGER NOT NULL DEFAULT 0,
	analyzed_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_code_symbols_unique ON code_symbols(project_id, file_path, name, start_line);
CREATE INDEX IF NOT EXISTS idx_code_symbols_file ON code_symbols(project_id, file_path);
CREATE INDEX IF NOT EXISTS idx_code_symbols_qualified ON code_symbols(project_id, qualified_name);

CREATE TABLE IF NOT EXISTS imports (
	project_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	import_path TEXT NOT NULL,
	imported_symbols TEXT,
	is_external INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, file_path, import_path)
);

CREATE TABLE IF NOT EXISTS call_edges (
	caller_symbol_id TEXT NOT NULL,
	callee_name TEXT NOT NULL,
	callee_symbol_id TEXT,
	call_line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(caller_symbol_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_symbol_id);

CREATE TABLE IF NOT EXISTS repository_files (
	project_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	language TEXT,
	last_indexed DATETIME NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, file_path)
);

CREATE TABLE IF NOT EXISTS pending_embeddings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	point_id TEXT NOT NULL,
	text TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name TEXT NOT NULL,
	directory TEXT NOT NULL,
	purpose TEXT,
	heuristic_purpose INTEGER NOT NULL DEFAULT 0,
	exports TEXT,
	depends_on TEXT,
	symbol_count INTEGER NOT NULL DEFAULT 0,
	line_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_modules_project ON modules(project_id, directory);

CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	request TEXT NOT NULL,
	status TEXT NOT NULL,
	result TEXT,
	error TEXT,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_operations_session ON operations(session_id);

CREATE TABLE IF NOT EXISTS operation_events (
	operation_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	type TEXT NOT NULL,
	time DATETIME NOT NULL,
	payload TEXT,
	PRIMARY KEY (operation_id, sequence)
);

CREATE TABLE IF NOT EXISTS budget_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	operation_id TEXT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	reasoning_effort TEXT,
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	from_cache INTEGER NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_budget_user_day ON budget_records(user_id, timestamp);
CREATE UNIQUE INDEX IF NOT EXISTS idx_budget_op_provider_model ON budget_records(operation_id, provider, model) WHERE operation_id IS NOT NULL AND operation_id != '';

CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL,
	severity TEXT NOT NULL,
	project_path TEXT,
	request_id TEXT,
	user_agent TEXT,
	remote_addr TEXT,
	details TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);

CREATE TABLE IF NOT EXISTS build_error_fixes (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	error_signature TEXT NOT NULL,
	error_text TEXT NOT NULL,
	fix_description TEXT NOT NULL,
	file_path TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_build_error_signature ON build_error_fixes(project_id, error_signature);

CREATE TABLE IF NOT EXISTS goals (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	title TEXT NOT NULL,
	description TEXT,
	success_criteria TEXT,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goals_project_status ON goals(project_id, status);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	goal_id TEXT NOT NULL REFERENCES goals(id),
	title TEXT NOT NULL,
	description TEXT,
	weight INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_goal ON tasks(goal_id);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
