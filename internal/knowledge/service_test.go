package knowledge

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/studyflow/relay/pkg/types"
)

// failingStorage simulates an unreachable primary backend: every operation
// fails with a backend-class error.
type failingStorage struct{}

func (failingStorage) Name() string { return "failing" }
func (failingStorage) Close() error { return nil }
func (failingStorage) PutEntry(context.Context, *types.KnowledgeEntry) error {
	return &BackendError{Op: "put entry", Err: errors.New("connection refused")}
}
func (failingStorage) GetEntry(context.Context, string) (*types.KnowledgeEntry, error) {
	return nil, &BackendError{Op: "get entry", Err: errors.New("connection refused")}
}
func (failingStorage) QueryEntries(context.Context, string, int) ([]*types.KnowledgeEntry, error) {
	return nil, &BackendError{Op: "query entries", Err: errors.New("connection refused")}
}
func (failingStorage) SearchEntries(context.Context, string, int) ([]*types.KnowledgeEntry, error) {
	return nil, &BackendError{Op: "search entries", Err: errors.New("connection refused")}
}
func (failingStorage) IncrementAccess(context.Context, string) error {
	return &BackendError{Op: "increment access", Err: errors.New("connection refused")}
}
func (failingStorage) AppendAccessLog(context.Context, *types.AccessLogEntry) error {
	return &BackendError{Op: "append access log", Err: errors.New("connection refused")}
}
func (failingStorage) PutMemory(context.Context, *types.AgentMemory) error {
	return &BackendError{Op: "put memory", Err: errors.New("connection refused")}
}
func (failingStorage) ListMemories(context.Context, string, string, int) ([]*types.AgentMemory, error) {
	return nil, &BackendError{Op: "list memories", Err: errors.New("connection refused")}
}
func (failingStorage) PutPattern(context.Context, *types.LearningPattern) error {
	return &BackendError{Op: "put pattern", Err: errors.New("connection refused")}
}
func (failingStorage) ListPatterns(context.Context, string, int) ([]*types.LearningPattern, error) {
	return nil, &BackendError{Op: "list patterns", Err: errors.New("connection refused")}
}
func (failingStorage) CountEntries(context.Context) (int64, error) {
	return 0, &BackendError{Op: "count entries", Err: errors.New("connection refused")}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupService builds a service over a SQLite primary with a local fallback
func setupService(t *testing.T) *Service {
	t.Helper()

	primary, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { primary.Close() })

	storage := NewFallbackStorage(primary, NewMemoryStorage(), quietLogger())
	return NewService(storage, quietLogger(), nil)
}

// setupDegradedService builds a service whose primary always fails
func setupDegradedService(t *testing.T) *Service {
	t.Helper()

	storage := NewFallbackStorage(failingStorage{}, NewMemoryStorage(), quietLogger())
	return NewService(storage, quietLogger(), nil)
}

func TestStoreRetrieve_RoundTrip(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	id, err := svc.Store(ctx, "student_profiles", "u1", map[string]any{"level": "advanced"}, "tutor-1", 0.8)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if id != "student_profiles:u1" {
		t.Errorf("Entry ID = %s, want student_profiles:u1", id)
	}

	value, err := svc.Retrieve(ctx, "student_profiles", "u1", "ui")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	m, ok := value.(map[string]any)
	if !ok || m["level"] != "advanced" {
		t.Errorf("Retrieved value = %v", value)
	}
}

func TestRetrieve_NotFound(t *testing.T) {
	svc := setupService(t)

	_, err := svc.Retrieve(context.Background(), "nope", "missing", "ui")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Store(ctx, "facts", "capital", "Paris", "src-a", 0.95); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	// Lower confidence still overwrites: last write wins
	if _, err := svc.Store(ctx, "facts", "capital", "Lyon", "src-b", 0.2); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	value, err := svc.Retrieve(ctx, "facts", "capital", "ui")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if value != "Lyon" {
		t.Errorf("Value = %v, want Lyon (last write wins)", value)
	}
}

func TestFallback_Transparency(t *testing.T) {
	svc := setupDegradedService(t)
	ctx := context.Background()

	// With the primary down, store then retrieve must round-trip the exact
	// value through the local path without surfacing an error.
	if _, err := svc.Store(ctx, "facts", "k1", "forty-two", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store with degraded primary failed: %v", err)
	}

	value, err := svc.Retrieve(ctx, "facts", "k1", "ui")
	if err != nil {
		t.Fatalf("Retrieve with degraded primary failed: %v", err)
	}
	if value != "forty-two" {
		t.Errorf("Value = %v, want forty-two", value)
	}
}

func TestFallback_IncrementsLocalOnlyEntry(t *testing.T) {
	primary, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { primary.Close() })

	local := NewMemoryStorage()
	fs := NewFallbackStorage(primary, local, quietLogger())
	ctx := context.Background()

	// An entry written while the primary was down lives only in the local
	// store. With the primary back up, the counter must still land there.
	entry := &types.KnowledgeEntry{
		ID: "facts:k", Category: "facts", Key: "k",
		Value: "v", Confidence: 1.0, Source: "tutor-1",
	}
	if err := local.PutEntry(ctx, entry); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	if err := fs.IncrementAccess(ctx, "facts:k"); err != nil {
		t.Fatalf("IncrementAccess failed: %v", err)
	}

	got, err := local.GetEntry(ctx, "facts:k")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
}

func TestQuery_ConfidenceOrderAndCap(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	confidences := []float64{0.3, 0.9, 0.5, 0.7, 0.2, 0.8, 0.4, 0.6, 0.1, 0.95, 0.25, 0.65}
	for i, c := range confidences {
		key := string(rune('a' + i))
		if _, err := svc.Store(ctx, "lesson_notes", key, "shared-topic", "tutor-1", c); err != nil {
			t.Fatalf("Store %d failed: %v", i, err)
		}
	}

	entries, err := svc.Query(ctx, "shared-topic", "ui")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("Query returned %d entries, want cap of 10", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Confidence > entries[i-1].Confidence {
			t.Errorf("Results out of confidence order at %d: %v > %v",
				i, entries[i].Confidence, entries[i-1].Confidence)
		}
	}
}

func TestQuery_MatchesCategoryKeyValue(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Store(ctx, "quiz_results", "q1", "algebra basics", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	for _, term := range []string{"quiz", "q1", "algebra"} {
		entries, err := svc.Query(ctx, term, "ui")
		if err != nil {
			t.Fatalf("Query(%q) failed: %v", term, err)
		}
		if len(entries) != 1 {
			t.Errorf("Query(%q) returned %d entries, want 1", term, len(entries))
		}
	}
}

func TestAccessLog_RecordsAndSkipsSystemInit(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	// Seeding writes are not logged
	if _, err := svc.Store(ctx, "seed", "k", "v", SystemSource, 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if got := svc.log.size(); got != 0 {
		t.Errorf("Access log size after seeding = %d, want 0", got)
	}

	if _, err := svc.Store(ctx, "facts", "k", "v", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := svc.Retrieve(ctx, "facts", "k", "ui"); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if _, err := svc.Query(ctx, "facts", "ui"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	recent := svc.AccessLog(10)
	if len(recent) != 3 {
		t.Fatalf("Access log has %d entries, want 3", len(recent))
	}
	// Newest first
	if recent[0].Kind != types.AccessQuery {
		t.Errorf("Newest entry kind = %s, want query", recent[0].Kind)
	}
	if recent[2].Kind != types.AccessStore || recent[2].Requester != "tutor-1" {
		t.Errorf("Oldest entry = %+v, want store by tutor-1", recent[2])
	}
}

func TestAccessLog_Capped(t *testing.T) {
	l := newAccessLog(NewMemoryStorage())
	ctx := context.Background()

	for i := 0; i < accessLogCap+50; i++ {
		l.record(ctx, "ui", "k", types.AccessRetrieve, "")
	}
	if l.size() != accessLogCap {
		t.Errorf("Access log size = %d, want cap of %d", l.size(), accessLogCap)
	}
}

func TestStore_DerivesTagsAndRelationships(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Store(ctx, "lesson_notes", "algebra-intro", "polynomials", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := svc.Store(ctx, "lesson_notes", "algebra-advanced", "polynomials", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entries, err := svc.Query(ctx, "algebra-advanced", "ui")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Query returned %d entries, want 1", len(entries))
	}

	entry := entries[0]
	if len(entry.Tags) == 0 {
		t.Error("Expected derived tags")
	}
	peers := entry.Relationships["same_category"]
	if len(peers) != 1 || peers[0] != "lesson_notes:algebra-intro" {
		t.Errorf("same_category edges = %v, want [lesson_notes:algebra-intro]", peers)
	}
}

func TestRetrieve_IncrementsAccessCount(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Store(ctx, "facts", "k", "v", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Retrieve(ctx, "facts", "k", "ui"); err != nil {
			t.Fatalf("Retrieve %d failed: %v", i, err)
		}
	}

	entries, err := svc.Query(ctx, "facts", "ui")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 || entries[0].AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", entries[0].AccessCount)
	}
}

func TestAgentMemory_OrderedByPriorityThenRecency(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.StoreAgentMemory(ctx, "agent-1", "observation", "low note", types.PriorityLow); err != nil {
		t.Fatalf("StoreAgentMemory failed: %v", err)
	}
	if _, err := svc.StoreAgentMemory(ctx, "agent-1", "observation", "critical note", types.PriorityCritical); err != nil {
		t.Fatalf("StoreAgentMemory failed: %v", err)
	}
	if _, err := svc.StoreAgentMemory(ctx, "agent-2", "observation", "other owner", types.PriorityHigh); err != nil {
		t.Fatalf("StoreAgentMemory failed: %v", err)
	}

	memories, err := svc.RetrieveAgentMemory(ctx, "agent-1", "", 10)
	if err != nil {
		t.Fatalf("RetrieveAgentMemory failed: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("Got %d memories, want 2", len(memories))
	}
	if memories[0].Content != "critical note" {
		t.Errorf("First memory = %v, want the critical one", memories[0].Content)
	}
}

func TestLearningPatterns_OrderedByEffectiveness(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, p := range []struct {
		desc string
		eff  float64
	}{
		{"spaced repetition", 0.6},
		{"worked examples", 0.9},
		{"rereading", 0.2},
	} {
		if _, err := svc.StoreLearningPattern(ctx, "agent-1", "study", p.desc, p.eff); err != nil {
			t.Fatalf("StoreLearningPattern failed: %v", err)
		}
	}

	patterns, err := svc.RetrieveLearningPatterns(ctx, "agent-1", 10)
	if err != nil {
		t.Fatalf("RetrieveLearningPatterns failed: %v", err)
	}
	if len(patterns) != 3 {
		t.Fatalf("Got %d patterns, want 3", len(patterns))
	}
	if patterns[0].Description != "worked examples" || patterns[2].Description != "rereading" {
		t.Errorf("Patterns out of effectiveness order: %v, %v, %v",
			patterns[0].Description, patterns[1].Description, patterns[2].Description)
	}
}

func TestSearch_FullText(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Store(ctx, "lesson_notes", "n1", "quadratic equations and factoring", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := svc.Store(ctx, "lesson_notes", "n2", "reading comprehension drills", "tutor-1", 1.0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entries, err := svc.Search(ctx, "quadratic", "ui")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "lesson_notes:n1" {
		t.Errorf("Search results = %v, want just lesson_notes:n1", entries)
	}
}
