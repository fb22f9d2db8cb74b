package knowledge

import (
	"context"
	"errors"
	"log"

	"github.com/studyflow/relay/pkg/types"
)

// FallbackStorage composes a primary and a local backend. Writes go to the
// primary; on a backend-class failure the write lands in the local store
// instead — never both, never dropped. Reads prefer the primary and fall
// back to local on backend failure or primary miss. Logic errors (bad
// input, decode failures) pass through without triggering the fallback.
//
// Data written to the local store while the primary is down is not
// reconciled back once the primary recovers; there is no backfill pass.
type FallbackStorage struct {
	primary Storage
	local   Storage
	logger  *log.Logger
}

// NewFallbackStorage composes primary and local backends
func NewFallbackStorage(primary, local Storage, logger *log.Logger) *FallbackStorage {
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackStorage{primary: primary, local: local, logger: logger}
}

// Name identifies the composed backend in logs
func (f *FallbackStorage) Name() string { return "fallback(" + f.primary.Name() + ")" }

// Close closes both backends
func (f *FallbackStorage) Close() error {
	errLocal := f.local.Close()
	if err := f.primary.Close(); err != nil {
		return err
	}
	return errLocal
}

// degrade logs one degradation line; the caller already has the local result
func (f *FallbackStorage) degrade(op string, err error) {
	f.logger.Printf("⚠️  %s degraded to local storage: %v", op, err)
}

// PutEntry writes to the primary, degrading to local on backend failure
func (f *FallbackStorage) PutEntry(ctx context.Context, entry *types.KnowledgeEntry) error {
	err := f.primary.PutEntry(ctx, entry)
	if err == nil || !IsBackendError(err) {
		return err
	}
	f.degrade("store", err)
	return f.local.PutEntry(ctx, entry)
}

// GetEntry reads from the primary, falling back to local on backend
// failure or primary miss
func (f *FallbackStorage) GetEntry(ctx context.Context, id string) (*types.KnowledgeEntry, error) {
	entry, err := f.primary.GetEntry(ctx, id)
	if err == nil {
		return entry, nil
	}
	if IsBackendError(err) {
		f.degrade("retrieve", err)
		return f.local.GetEntry(ctx, id)
	}
	if errors.Is(err, ErrNotFound) {
		// The entry may have been written while the primary was down
		return f.local.GetEntry(ctx, id)
	}
	return nil, err
}

// QueryEntries searches the primary, falling back to local only on backend
// failure
func (f *FallbackStorage) QueryEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	out, err := f.primary.QueryEntries(ctx, term, limit)
	if err == nil || !IsBackendError(err) {
		return out, err
	}
	f.degrade("query", err)
	return f.local.QueryEntries(ctx, term, limit)
}

// SearchEntries runs full-text search on the primary, degrading to the
// local substring scan on backend failure
func (f *FallbackStorage) SearchEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	out, err := f.primary.SearchEntries(ctx, term, limit)
	if err == nil || !IsBackendError(err) {
		return out, err
	}
	f.degrade("search", err)
	return f.local.SearchEntries(ctx, term, limit)
}

// IncrementAccess bumps the counter wherever the entry lives. A primary
// miss falls through to local, matching the GetEntry read path for entries
// written during an outage.
func (f *FallbackStorage) IncrementAccess(ctx context.Context, id string) error {
	err := f.primary.IncrementAccess(ctx, id)
	if err == nil {
		return nil
	}
	if IsBackendError(err) || errors.Is(err, ErrNotFound) {
		return f.local.IncrementAccess(ctx, id)
	}
	return err
}

// AppendAccessLog mirrors the record to the primary, degrading to local
func (f *FallbackStorage) AppendAccessLog(ctx context.Context, rec *types.AccessLogEntry) error {
	err := f.primary.AppendAccessLog(ctx, rec)
	if err == nil || !IsBackendError(err) {
		return err
	}
	return f.local.AppendAccessLog(ctx, rec)
}

// PutMemory writes to the primary, degrading to local on backend failure
func (f *FallbackStorage) PutMemory(ctx context.Context, mem *types.AgentMemory) error {
	err := f.primary.PutMemory(ctx, mem)
	if err == nil || !IsBackendError(err) {
		return err
	}
	f.degrade("store memory", err)
	return f.local.PutMemory(ctx, mem)
}

// ListMemories reads from the primary, falling back on backend failure
func (f *FallbackStorage) ListMemories(ctx context.Context, ownerID, memType string, limit int) ([]*types.AgentMemory, error) {
	out, err := f.primary.ListMemories(ctx, ownerID, memType, limit)
	if err == nil || !IsBackendError(err) {
		return out, err
	}
	f.degrade("retrieve memories", err)
	return f.local.ListMemories(ctx, ownerID, memType, limit)
}

// PutPattern writes to the primary, degrading to local on backend failure
func (f *FallbackStorage) PutPattern(ctx context.Context, pat *types.LearningPattern) error {
	err := f.primary.PutPattern(ctx, pat)
	if err == nil || !IsBackendError(err) {
		return err
	}
	f.degrade("store pattern", err)
	return f.local.PutPattern(ctx, pat)
}

// ListPatterns reads from the primary, falling back on backend failure
func (f *FallbackStorage) ListPatterns(ctx context.Context, ownerID string, limit int) ([]*types.LearningPattern, error) {
	out, err := f.primary.ListPatterns(ctx, ownerID, limit)
	if err == nil || !IsBackendError(err) {
		return out, err
	}
	f.degrade("retrieve patterns", err)
	return f.local.ListPatterns(ctx, ownerID, limit)
}

// CountEntries counts primary entries, falling back on backend failure
func (f *FallbackStorage) CountEntries(ctx context.Context) (int64, error) {
	n, err := f.primary.CountEntries(ctx)
	if err == nil || !IsBackendError(err) {
		return n, err
	}
	return f.local.CountEntries(ctx)
}
