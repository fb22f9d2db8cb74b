package knowledge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studyflow/relay/internal/events"
	"github.com/studyflow/relay/pkg/telemetry"
	"github.com/studyflow/relay/pkg/types"
)

const (
	// SystemSource marks bulk seeding writes that are excluded from the
	// access log to avoid flooding it
	SystemSource = "system-init"

	// TaskResultsCategory holds persisted task outcomes
	TaskResultsCategory = "task_results"

	// TaskResultConfidence is the fixed confidence for task outcome entries
	TaskResultConfidence = 0.9

	// queryLimit caps free-text query results
	queryLimit = 10

	// maxDerivedTags bounds the tag list derived per entry
	maxDerivedTags = 8

	// maxRelated bounds relationship edges derived per relation type
	maxRelated = 5
)

// Service is the knowledge store facade. Every read and write goes through
// the composed fallback storage, is logged with requester identity, and
// keeps derived tags and relationship edges up to date.
type Service struct {
	storage Storage
	log     *accessLog
	logger  *log.Logger
	bus     *events.Bus
}

// NewService creates a knowledge service over the given storage.
// Logger and bus are optional.
func NewService(storage Storage, logger *log.Logger, bus *events.Bus) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[knowledge] ", log.LstdFlags)
	}
	return &Service{
		storage: storage,
		log:     newAccessLog(storage),
		logger:  logger,
		bus:     bus,
	}
}

// Store writes a category/key fact. Conflicts resolve last-write-wins with
// the caller-supplied confidence; an existing higher-confidence entry is
// overwritten. Returns the entry identity.
//
// Writes from SystemSource skip the access log.
func (s *Service) Store(ctx context.Context, category, key string, value any, sourceID string, confidence float64) (string, error) {
	if category == "" || key == "" {
		return "", fmt.Errorf("storing knowledge: category and key are required")
	}
	if confidence < 0 || confidence > 1 {
		return "", fmt.Errorf("storing knowledge %s:%s: confidence %v out of [0,1]", category, key, confidence)
	}

	id := types.KnowledgeID(category, key)
	_, span := telemetry.StartKnowledgeSpan(ctx, telemetry.SpanKnowledgeStore, id, sourceID)
	defer span.End()

	now := time.Now().Unix()
	entry := &types.KnowledgeEntry{
		ID:         id,
		Category:   category,
		Key:        key,
		Value:      value,
		Confidence: confidence,
		Source:     sourceID,
		Tags:       deriveTags(category, key, value),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Preserve creation time and counter across updates
	if existing, err := s.storage.GetEntry(ctx, id); err == nil {
		entry.CreatedAt = existing.CreatedAt
		entry.AccessCount = existing.AccessCount
	}

	entry.Relationships = s.deriveRelationships(ctx, entry)

	if err := s.storage.PutEntry(ctx, entry); err != nil {
		telemetry.RecordError(span, err, telemetry.ErrorTypeBackend)
		return "", fmt.Errorf("storing knowledge %s: %w", id, err)
	}

	if sourceID != SystemSource {
		s.log.record(ctx, sourceID, id, types.AccessStore, "")
	}
	if s.bus != nil {
		s.bus.Publish(events.NewEvent(events.EventKnowledgeStored, "", sourceID, map[string]any{
			"entry_id": id,
			"category": category,
		}))
	}

	return id, nil
}

// Retrieve returns the value stored under category/key, bumping its access
// counter. A primary outage or miss is served from the local store; only a
// true miss in both backends surfaces ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, category, key, requesterID string) (any, error) {
	id := types.KnowledgeID(category, key)
	_, span := telemetry.StartKnowledgeSpan(ctx, telemetry.SpanKnowledgeRetrieve, id, requesterID)
	defer span.End()

	s.log.record(ctx, requesterID, id, types.AccessRetrieve, "")

	entry, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err, telemetry.ErrorTypeBackend)
		return nil, err
	}

	// Counter update is best-effort; a read should never fail on it
	_ = s.storage.IncrementAccess(ctx, id)

	return entry.Value, nil
}

// Query performs a substring search across category, key, and value.
// Results are ordered by confidence descending and capped at 10. The call
// is logged once with the result count, not per result.
func (s *Service) Query(ctx context.Context, term, requesterID string) ([]*types.KnowledgeEntry, error) {
	_, span := telemetry.StartKnowledgeSpan(ctx, telemetry.SpanKnowledgeQuery, "", requesterID)
	defer span.End()

	entries, err := s.storage.QueryEntries(ctx, term, queryLimit)
	if err != nil {
		telemetry.RecordError(span, err, telemetry.ErrorTypeBackend)
		return nil, fmt.Errorf("querying knowledge for %q: %w", term, err)
	}

	// Backends return confidence-ordered results; keep the guarantee even
	// if the fallback path served the query
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Confidence > entries[j].Confidence
	})

	s.log.record(ctx, requesterID, term, types.AccessQuery, fmt.Sprintf("%d results", len(entries)))
	return entries, nil
}

// Search performs ranked full-text search over entries. On the local
// fallback path it degrades to a substring scan.
func (s *Service) Search(ctx context.Context, term, requesterID string) ([]*types.KnowledgeEntry, error) {
	entries, err := s.storage.SearchEntries(ctx, term, queryLimit)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge for %q: %w", term, err)
	}
	s.log.record(ctx, requesterID, term, types.AccessQuery, fmt.Sprintf("fts: %d results", len(entries)))
	return entries, nil
}

// StoreTaskResult persists a completed task's result under the
// task_results category, keyed by task ID
func (s *Service) StoreTaskResult(ctx context.Context, taskID string, result any, agentID string) error {
	_, err := s.Store(ctx, TaskResultsCategory, taskID, result, agentID, TaskResultConfidence)
	return err
}

// StoreAgentMemory records a typed memory for an agent or user identity
func (s *Service) StoreAgentMemory(ctx context.Context, ownerID, memType string, content any, priority types.Priority) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("storing agent memory: owner id is required")
	}

	mem := &types.AgentMemory{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Type:      memType,
		Content:   content,
		Priority:  priority.Normalize(),
		CreatedAt: time.Now().Unix(),
	}
	if err := s.storage.PutMemory(ctx, mem); err != nil {
		return "", fmt.Errorf("storing agent memory for %s: %w", ownerID, err)
	}

	s.log.record(ctx, ownerID, "memory:"+mem.ID, types.AccessStore, memType)
	return mem.ID, nil
}

// RetrieveAgentMemory returns memories for an owner, newest and most urgent
// first, optionally filtered by type
func (s *Service) RetrieveAgentMemory(ctx context.Context, ownerID, memType string, limit int) ([]*types.AgentMemory, error) {
	if limit <= 0 {
		limit = queryLimit
	}
	out, err := s.storage.ListMemories(ctx, ownerID, memType, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieving agent memory for %s: %w", ownerID, err)
	}
	s.log.record(ctx, ownerID, "memory:"+ownerID, types.AccessRetrieve, fmt.Sprintf("%d results", len(out)))
	return out, nil
}

// StoreLearningPattern records a reusable approach with its effectiveness
func (s *Service) StoreLearningPattern(ctx context.Context, ownerID, patType, description string, effectiveness float64) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("storing learning pattern: owner id is required")
	}

	pat := &types.LearningPattern{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Type:          patType,
		Description:   description,
		Effectiveness: effectiveness,
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.storage.PutPattern(ctx, pat); err != nil {
		return "", fmt.Errorf("storing learning pattern for %s: %w", ownerID, err)
	}

	s.log.record(ctx, ownerID, "pattern:"+pat.ID, types.AccessStore, patType)
	return pat.ID, nil
}

// RetrieveLearningPatterns returns patterns for an owner ordered by
// effectiveness descending
func (s *Service) RetrieveLearningPatterns(ctx context.Context, ownerID string, limit int) ([]*types.LearningPattern, error) {
	if limit <= 0 {
		limit = queryLimit
	}
	out, err := s.storage.ListPatterns(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieving learning patterns for %s: %w", ownerID, err)
	}
	s.log.record(ctx, ownerID, "pattern:"+ownerID, types.AccessRetrieve, fmt.Sprintf("%d results", len(out)))
	return out, nil
}

// AccessLog returns up to n of the most recent access records, newest first
func (s *Service) AccessLog(n int) []*types.AccessLogEntry {
	return s.log.recent(n)
}

// Count returns the number of stored knowledge entries
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.storage.CountEntries(ctx)
}

// Close releases the underlying storage
func (s *Service) Close() error {
	return s.storage.Close()
}

// deriveTags builds the tag list from category, key, and string value
// tokens, deduplicated and capped
func deriveTags(category, key string, value any) []string {
	seen := make(map[string]bool)
	var tags []string

	add := func(s string) {
		for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			switch r {
			case '-', '_', '.', ' ', '/', ':':
				return true
			}
			return false
		}) {
			if len(tok) < 3 || seen[tok] || len(tags) >= maxDerivedTags {
				continue
			}
			seen[tok] = true
			tags = append(tags, tok)
		}
	}

	add(category)
	add(key)
	if s, ok := value.(string); ok {
		add(s)
	}
	return tags
}

// deriveRelationships links the entry to peers in the same category, and
// to peers sharing a derived tag, capped per relation type. Derivation is
// best-effort: a failing lookup yields no edges, not an error.
func (s *Service) deriveRelationships(ctx context.Context, entry *types.KnowledgeEntry) map[string][]string {
	peers, err := s.storage.QueryEntries(ctx, entry.Category, queryLimit)
	if err != nil {
		return nil
	}

	tagSet := make(map[string]bool, len(entry.Tags))
	for _, tag := range entry.Tags {
		tagSet[tag] = true
	}

	rels := make(map[string][]string)
	for _, peer := range peers {
		if peer.ID == entry.ID {
			continue
		}
		if peer.Category == entry.Category && len(rels["same_category"]) < maxRelated {
			rels["same_category"] = append(rels["same_category"], peer.ID)
		}
		for _, tag := range peer.Tags {
			if tagSet[tag] && len(rels["shared_tag"]) < maxRelated {
				rels["shared_tag"] = append(rels["shared_tag"], peer.ID)
				break
			}
		}
	}

	if len(rels) == 0 {
		return nil
	}
	return rels
}
