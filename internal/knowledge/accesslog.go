package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/studyflow/relay/pkg/types"
)

// accessLogCap bounds the in-memory audit buffer to the most recent entries
const accessLogCap = 1000

// accessLog is the append-only audit trail of knowledge reads and writes.
// It keeps the most recent accessLogCap entries in memory and mirrors each
// record to durable storage best-effort; mirror failures are swallowed.
type accessLog struct {
	mu      sync.Mutex
	entries []*types.AccessLogEntry
	storage Storage
}

func newAccessLog(storage Storage) *accessLog {
	return &accessLog{storage: storage}
}

// record appends one access entry and mirrors it
func (l *accessLog) record(ctx context.Context, requester, targetKey string, kind types.AccessKind, detail string) {
	rec := &types.AccessLogEntry{
		Requester: requester,
		TargetKey: targetKey,
		Kind:      kind,
		Timestamp: time.Now().Unix(),
		Context:   detail,
	}

	l.mu.Lock()
	l.entries = append(l.entries, rec)
	if len(l.entries) > accessLogCap {
		l.entries = l.entries[len(l.entries)-accessLogCap:]
	}
	l.mu.Unlock()

	// Mirror is best-effort; an unreachable sink must never affect callers
	_ = l.storage.AppendAccessLog(ctx, rec)
}

// recent returns up to n of the newest entries, newest first
func (l *accessLog) recent(n int) []*types.AccessLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]*types.AccessLogEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		cp := *l.entries[i]
		out = append(out, &cp)
	}
	return out
}

// size returns the number of buffered entries
func (l *accessLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
