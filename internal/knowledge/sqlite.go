package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/studyflow/relay/pkg/types"
)

// SQLiteStorage is the primary knowledge backend. All failures it returns
// are wrapped as BackendError so the fallback decorator can classify them.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the primary store at the given path and
// initializes the schema. Use ":memory:" for an ephemeral store in tests.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer, and an in-memory
	// database is scoped to its connection
	db.SetMaxOpenConns(1)

	// WAL mode and a busy timeout keep concurrent access graceful
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the knowledge tables and the FTS5 index
func (s *SQLiteStorage) initSchema() error {
	schema := `
	-- Knowledge entries keyed by category:key identity
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		confidence REAL DEFAULT 1.0,
		source TEXT,
		tags TEXT,
		relationships TEXT,
		access_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Append-only access audit mirror
	CREATE TABLE IF NOT EXISTS access_log (
		requester TEXT NOT NULL,
		target_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		context TEXT
	);

	-- Per-agent typed memory records
	CREATE TABLE IF NOT EXISTS agent_memories (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT,
		priority TEXT DEFAULT 'medium',
		created_at INTEGER NOT NULL
	);

	-- Learning patterns scored by effectiveness
	CREATE TABLE IF NOT EXISTS learning_patterns (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		effectiveness REAL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_category ON knowledge_entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_confidence ON knowledge_entries(confidence DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON agent_memories(owner_id, type);
	CREATE INDEX IF NOT EXISTS idx_patterns_owner ON learning_patterns(owner_id);
	CREATE INDEX IF NOT EXISTS idx_access_log_time ON access_log(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return &BackendError{Op: "init schema", Err: err}
	}

	// FTS5 index over entries, kept in sync by triggers
	fts := `
	CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		entry_id UNINDEXED,
		category,
		key,
		value
	);

	CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge_entries BEGIN
		INSERT INTO knowledge_fts(entry_id, category, key, value)
		VALUES (NEW.id, NEW.category, NEW.key, NEW.value);
	END;

	CREATE TRIGGER IF NOT EXISTS knowledge_au AFTER UPDATE ON knowledge_entries BEGIN
		UPDATE knowledge_fts SET category = NEW.category, key = NEW.key, value = NEW.value
		WHERE entry_id = NEW.id;
	END;

	CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge_entries BEGIN
		DELETE FROM knowledge_fts WHERE entry_id = OLD.id;
	END;
	`

	if _, err := s.db.Exec(fts); err != nil {
		return &BackendError{Op: "init fts schema", Err: err}
	}

	return nil
}

// Name identifies this backend in logs
func (s *SQLiteStorage) Name() string { return "sqlite" }

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// PutEntry upserts a knowledge entry. Last write wins: the incoming record
// replaces the stored one regardless of relative confidence.
func (s *SQLiteStorage) PutEntry(ctx context.Context, entry *types.KnowledgeEntry) error {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", entry.ID, err)
	}
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for %s: %w", entry.ID, err)
	}
	rels, err := json.Marshal(entry.Relationships)
	if err != nil {
		return fmt.Errorf("encoding relationships for %s: %w", entry.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries
			(id, category, key, value, confidence, source, tags, relationships, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			source = excluded.source,
			tags = excluded.tags,
			relationships = excluded.relationships,
			updated_at = excluded.updated_at
	`, entry.ID, entry.Category, entry.Key, string(value), entry.Confidence, entry.Source,
		string(tags), string(rels), entry.AccessCount, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return &BackendError{Op: "put entry", Err: err}
	}
	return nil
}

// GetEntry returns the entry with the given identity, or ErrNotFound
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*types.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, key, COALESCE(value, 'null'), confidence, COALESCE(source, ''),
		       COALESCE(tags, '[]'), COALESCE(relationships, '{}'), access_count, created_at, updated_at
		FROM knowledge_entries
		WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &BackendError{Op: "get entry", Err: err}
	}
	return entry, nil
}

// QueryEntries performs a substring search across category, key, and value,
// ordered by confidence descending
func (s *SQLiteStorage) QueryEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, key, COALESCE(value, 'null'), confidence, COALESCE(source, ''),
		       COALESCE(tags, '[]'), COALESCE(relationships, '{}'), access_count, created_at, updated_at
		FROM knowledge_entries
		WHERE category LIKE ? ESCAPE '\'
		   OR key LIKE ? ESCAPE '\'
		   OR value LIKE ? ESCAPE '\'
		ORDER BY confidence DESC, updated_at DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, &BackendError{Op: "query entries", Err: err}
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SearchEntries performs ranked full-text search over the FTS5 index
func (s *SQLiteStorage) SearchEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.category, e.key, COALESCE(e.value, 'null'), e.confidence, COALESCE(e.source, ''),
		       COALESCE(e.tags, '[]'), COALESCE(e.relationships, '{}'), e.access_count, e.created_at, e.updated_at
		FROM knowledge_fts f
		INNER JOIN knowledge_entries e ON f.entry_id = e.id
		WHERE knowledge_fts MATCH ?
		ORDER BY bm25(knowledge_fts)
		LIMIT ?
	`, ftsQuery(term), limit)
	if err != nil {
		return nil, &BackendError{Op: "search entries", Err: err}
	}
	defer rows.Close()

	return collectEntries(rows)
}

// IncrementAccess bumps the access counter of an entry. Returns ErrNotFound
// when the entry does not exist here, so a composed backend can try its
// other store.
func (s *SQLiteStorage) IncrementAccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET access_count = access_count + 1 WHERE id = ?
	`, id)
	if err != nil {
		return &BackendError{Op: "increment access", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAccessLog mirrors one access record
func (s *SQLiteStorage) AppendAccessLog(ctx context.Context, rec *types.AccessLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_log (requester, target_key, kind, timestamp, context)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Requester, rec.TargetKey, rec.Kind, rec.Timestamp, rec.Context)
	if err != nil {
		return &BackendError{Op: "append access log", Err: err}
	}
	return nil
}

// PruneAccessLog deletes mirrored access records older than the cutoff and
// returns the number removed
func (s *SQLiteStorage) PruneAccessLog(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM access_log WHERE timestamp < ?
	`, before.Unix())
	if err != nil {
		return 0, &BackendError{Op: "prune access log", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &BackendError{Op: "prune access log", Err: err}
	}
	return n, nil
}

// PutMemory upserts an agent memory record
func (s *SQLiteStorage) PutMemory(ctx context.Context, mem *types.AgentMemory) error {
	content, err := json.Marshal(mem.Content)
	if err != nil {
		return fmt.Errorf("encoding memory content for %s: %w", mem.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_memories (id, owner_id, type, content, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			priority = excluded.priority
	`, mem.ID, mem.OwnerID, mem.Type, string(content), string(mem.Priority), mem.CreatedAt)
	if err != nil {
		return &BackendError{Op: "put memory", Err: err}
	}
	return nil
}

// ListMemories returns memories for an owner ordered by priority then recency
func (s *SQLiteStorage) ListMemories(ctx context.Context, ownerID, memType string, limit int) ([]*types.AgentMemory, error) {
	query := `
		SELECT id, owner_id, type, COALESCE(content, 'null'), priority, created_at
		FROM agent_memories
		WHERE owner_id = ?`
	args := []any{ownerID}
	if memType != "" {
		query += ` AND type = ?`
		args = append(args, memType)
	}
	query += `
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &BackendError{Op: "list memories", Err: err}
	}
	defer rows.Close()

	var out []*types.AgentMemory
	for rows.Next() {
		var mem types.AgentMemory
		var content, priority string
		if err := rows.Scan(&mem.ID, &mem.OwnerID, &mem.Type, &content, &priority, &mem.CreatedAt); err != nil {
			return nil, &BackendError{Op: "scan memory", Err: err}
		}
		if err := json.Unmarshal([]byte(content), &mem.Content); err != nil {
			return nil, fmt.Errorf("decoding memory content for %s: %w", mem.ID, err)
		}
		mem.Priority = types.Priority(priority)
		out = append(out, &mem)
	}
	return out, rows.Err()
}

// PutPattern upserts a learning pattern
func (s *SQLiteStorage) PutPattern(ctx context.Context, pat *types.LearningPattern) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_patterns (id, owner_id, type, description, effectiveness, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			effectiveness = excluded.effectiveness
	`, pat.ID, pat.OwnerID, pat.Type, pat.Description, pat.Effectiveness, pat.CreatedAt)
	if err != nil {
		return &BackendError{Op: "put pattern", Err: err}
	}
	return nil
}

// ListPatterns returns patterns for an owner ordered by effectiveness descending
func (s *SQLiteStorage) ListPatterns(ctx context.Context, ownerID string, limit int) ([]*types.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, type, COALESCE(description, ''), effectiveness, created_at
		FROM learning_patterns
		WHERE owner_id = ?
		ORDER BY effectiveness DESC, created_at DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, &BackendError{Op: "list patterns", Err: err}
	}
	defer rows.Close()

	var out []*types.LearningPattern
	for rows.Next() {
		var pat types.LearningPattern
		if err := rows.Scan(&pat.ID, &pat.OwnerID, &pat.Type, &pat.Description, &pat.Effectiveness, &pat.CreatedAt); err != nil {
			return nil, &BackendError{Op: "scan pattern", Err: err}
		}
		out = append(out, &pat)
	}
	return out, rows.Err()
}

// CountEntries returns the number of stored knowledge entries
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries`).Scan(&count)
	if err != nil {
		return 0, &BackendError{Op: "count entries", Err: err}
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows for entry scanning
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*types.KnowledgeEntry, error) {
	var entry types.KnowledgeEntry
	var value, tags, rels string

	err := row.Scan(&entry.ID, &entry.Category, &entry.Key, &value, &entry.Confidence,
		&entry.Source, &tags, &rels, &entry.AccessCount, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(value), &entry.Value); err != nil {
		return nil, fmt.Errorf("decoding value for %s: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(rels), &entry.Relationships); err != nil {
		return nil, fmt.Errorf("decoding relationships for %s: %w", entry.ID, err)
	}
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]*types.KnowledgeEntry, error) {
	var out []*types.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, &BackendError{Op: "scan entry", Err: err}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// escapeLike escapes LIKE wildcards in a user-supplied term
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// ftsQuery quotes each word of the term so FTS5 treats user input as plain
// tokens rather than query syntax
func ftsQuery(term string) string {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, ``) + `"`
	}
	return strings.Join(words, " ")
}
