package types

import "fmt"

// KnowledgeEntry is a confidence-scored fact keyed by category:key
type KnowledgeEntry struct {
	ID            string              `json:"id" db:"id"`
	Category      string              `json:"category" db:"category"`
	Key           string              `json:"key" db:"key"`
	Value         any                 `json:"value" db:"value"`
	Confidence    float64             `json:"confidence" db:"confidence"`
	Source        string              `json:"source" db:"source"`
	Tags          []string            `json:"tags,omitempty" db:"tags"`
	Relationships map[string][]string `json:"relationships,omitempty" db:"relationships"`
	AccessCount   int64               `json:"access_count" db:"access_count"`
	CreatedAt     int64               `json:"created_at" db:"created_at"`
	UpdatedAt     int64               `json:"updated_at" db:"updated_at"`
}

// KnowledgeID derives the globally unique entry identity from (category, key)
func KnowledgeID(category, key string) string {
	return fmt.Sprintf("%s:%s", category, key)
}

// AccessKind classifies a knowledge access for the audit log
type AccessKind string

const (
	AccessStore    AccessKind = "store"
	AccessRetrieve AccessKind = "retrieve"
	AccessQuery    AccessKind = "query"
)

// AccessLogEntry records one knowledge read or write with requester identity
type AccessLogEntry struct {
	Requester string     `json:"requester" db:"requester"`
	TargetKey string     `json:"target_key" db:"target_key"`
	Kind      AccessKind `json:"kind" db:"kind"`
	Timestamp int64      `json:"timestamp" db:"timestamp"`
	Context   string     `json:"context,omitempty" db:"context"`
}

// AgentMemory is a typed memory record tied to an agent or user identity
type AgentMemory struct {
	ID        string   `json:"id" db:"id"`
	OwnerID   string   `json:"owner_id" db:"owner_id"`
	Type      string   `json:"type" db:"type"`
	Content   any      `json:"content" db:"content"`
	Priority  Priority `json:"priority" db:"priority"`
	CreatedAt int64    `json:"created_at" db:"created_at"`
}

// LearningPattern is a reusable approach scored by observed effectiveness
type LearningPattern struct {
	ID            string  `json:"id" db:"id"`
	OwnerID       string  `json:"owner_id" db:"owner_id"`
	Type          string  `json:"type" db:"type"`
	Description   string  `json:"description" db:"description"`
	Effectiveness float64 `json:"effectiveness" db:"effectiveness"`
	CreatedAt     int64   `json:"created_at" db:"created_at"`
}
