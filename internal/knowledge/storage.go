package knowledge

import (
	"context"

	"github.com/studyflow/relay/pkg/types"
)

// Storage is the persistence contract the knowledge service composes.
// The primary implementation is SQLite-backed; the fallback is in-process.
// The remote/local split is internal to this package and never visible to
// callers of the service.
type Storage interface {
	// Name identifies the backend in logs and telemetry
	Name() string

	// PutEntry upserts a knowledge entry keyed by its category:key identity
	PutEntry(ctx context.Context, entry *types.KnowledgeEntry) error

	// GetEntry returns the entry with the given identity, or ErrNotFound
	GetEntry(ctx context.Context, id string) (*types.KnowledgeEntry, error)

	// QueryEntries performs a substring search across category, key, and
	// value, ordered by confidence descending, capped at limit
	QueryEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error)

	// SearchEntries performs ranked full-text search over entries
	SearchEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error)

	// IncrementAccess bumps the access counter of an entry
	IncrementAccess(ctx context.Context, id string) error

	// AppendAccessLog mirrors one access log record
	AppendAccessLog(ctx context.Context, rec *types.AccessLogEntry) error

	// PutMemory upserts an agent memory record
	PutMemory(ctx context.Context, mem *types.AgentMemory) error

	// ListMemories returns memories for an owner, filtered by type when
	// memType is non-empty, ordered by priority then recency
	ListMemories(ctx context.Context, ownerID, memType string, limit int) ([]*types.AgentMemory, error)

	// PutPattern upserts a learning pattern
	PutPattern(ctx context.Context, pat *types.LearningPattern) error

	// ListPatterns returns patterns for an owner ordered by effectiveness
	// descending
	ListPatterns(ctx context.Context, ownerID string, limit int) ([]*types.LearningPattern, error)

	// CountEntries returns the number of stored knowledge entries
	CountEntries(ctx context.Context) (int64, error)

	// Close releases backend resources
	Close() error
}
