package knowledge

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/studyflow/relay/pkg/types"
)

// MemoryStorage is the in-process fallback backend. It is non-durable and
// only holds data written while the primary backend is unreachable (or in
// local-only mode). Its operations never fail with backend-class errors.
type MemoryStorage struct {
	mu        sync.RWMutex
	entries   map[string]*types.KnowledgeEntry
	accessLog []*types.AccessLogEntry
	memories  map[string]*types.AgentMemory
	patterns  map[string]*types.LearningPattern
}

// NewMemoryStorage creates an empty in-process store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:  make(map[string]*types.KnowledgeEntry),
		memories: make(map[string]*types.AgentMemory),
		patterns: make(map[string]*types.LearningPattern),
	}
}

// Name identifies this backend in logs
func (m *MemoryStorage) Name() string { return "local" }

// Close is a no-op for the in-process store
func (m *MemoryStorage) Close() error { return nil }

// PutEntry upserts an entry, last write wins
func (m *MemoryStorage) PutEntry(_ context.Context, entry *types.KnowledgeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

// GetEntry returns the entry with the given identity, or ErrNotFound
func (m *MemoryStorage) GetEntry(_ context.Context, id string) (*types.KnowledgeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// QueryEntries performs a substring scan across category, key, and value,
// ordered by confidence descending
func (m *MemoryStorage) QueryEntries(_ context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	needle := strings.ToLower(term)

	m.mu.RLock()
	var matched []*types.KnowledgeEntry
	for _, entry := range m.entries {
		if entryContains(entry, needle) {
			cp := *entry
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].UpdatedAt > matched[j].UpdatedAt
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// SearchEntries has no full-text index locally; it degrades to the
// substring scan
func (m *MemoryStorage) SearchEntries(ctx context.Context, term string, limit int) ([]*types.KnowledgeEntry, error) {
	return m.QueryEntries(ctx, term, limit)
}

// IncrementAccess bumps the access counter of an entry
func (m *MemoryStorage) IncrementAccess(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.AccessCount++
	return nil
}

// AppendAccessLog records one access
func (m *MemoryStorage) AppendAccessLog(_ context.Context, rec *types.AccessLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.accessLog = append(m.accessLog, &cp)
	return nil
}

// PutMemory upserts an agent memory record
func (m *MemoryStorage) PutMemory(_ context.Context, mem *types.AgentMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mem
	m.memories[mem.ID] = &cp
	return nil
}

// ListMemories returns memories for an owner ordered by priority then recency
func (m *MemoryStorage) ListMemories(_ context.Context, ownerID, memType string, limit int) ([]*types.AgentMemory, error) {
	m.mu.RLock()
	var out []*types.AgentMemory
	for _, mem := range m.memories {
		if mem.OwnerID != ownerID {
			continue
		}
		if memType != "" && mem.Type != memType {
			continue
		}
		cp := *mem
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutPattern upserts a learning pattern
func (m *MemoryStorage) PutPattern(_ context.Context, pat *types.LearningPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *pat
	m.patterns[pat.ID] = &cp
	return nil
}

// ListPatterns returns patterns for an owner ordered by effectiveness descending
func (m *MemoryStorage) ListPatterns(_ context.Context, ownerID string, limit int) ([]*types.LearningPattern, error) {
	m.mu.RLock()
	var out []*types.LearningPattern
	for _, pat := range m.patterns {
		if pat.OwnerID != ownerID {
			continue
		}
		cp := *pat
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Effectiveness != out[j].Effectiveness {
			return out[i].Effectiveness > out[j].Effectiveness
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountEntries returns the number of stored knowledge entries
func (m *MemoryStorage) CountEntries(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// entryContains reports whether the lower-cased needle appears in the
// entry's category, key, or JSON-encoded value
func entryContains(entry *types.KnowledgeEntry, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Category), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(entry.Key), needle) {
		return true
	}
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(value)), needle)
}

// priorityRank orders priorities for memory sorting, critical first
func priorityRank(p types.Priority) int {
	switch p {
	case types.PriorityCritical:
		return 0
	case types.PriorityHigh:
		return 1
	case types.PriorityMedium:
		return 2
	default:
		return 3
	}
}
