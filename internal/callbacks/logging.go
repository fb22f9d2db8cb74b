package callbacks

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel defines the verbosity level for logging
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// LoggingConfig configures the structured logging callback
type LoggingConfig struct {
	// Output destination (defaults to stdout)
	Writer io.Writer
	// Minimum log level to output
	MinLevel LogLevel
	// Enable pretty-printing for development
	Pretty bool
}

// StructuredLoggingCallback implements Callback with JSON-formatted logs.
// All events are logged as structured JSON for easy parsing by external tools.
type StructuredLoggingCallback struct {
	config LoggingConfig
	mu     sync.Mutex
	logger *log.Logger
}

// NewStructuredLoggingCallback creates a new structured logging callback
func NewStructuredLoggingCallback(config LoggingConfig) *StructuredLoggingCallback {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}

	return &StructuredLoggingCallback{
		config: config,
		logger: log.New(writer, "", 0),
	}
}

// logEvent writes a structured log entry
func (c *StructuredLoggingCallback) logEvent(level LogLevel, eventType EventType, data any) error {
	if level < c.config.MinLevel {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := map[string]any{
		"level":     level.String(),
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}

	switch v := data.(type) {
	case *TaskEventContext:
		entry["task_id"] = v.TaskID
		entry["task_type"] = v.TaskType
		entry["priority"] = v.Priority
		if v.PrevState != "" {
			entry["prev_state"] = v.PrevState
		}
		if v.NewState != "" {
			entry["new_state"] = v.NewState
		}
		if v.AgentID != "" {
			entry["agent_id"] = v.AgentID
		}
		if v.Duration != nil {
			entry["duration_ms"] = v.Duration.Milliseconds()
		}
		if v.Error != "" {
			entry["error"] = v.Error
			entry["error_type"] = v.ErrorType
		}
		if len(v.Metadata) > 0 {
			entry["metadata"] = v.Metadata
		}

	case *AgentEventContext:
		entry["agent_id"] = v.AgentID
		entry["agent_name"] = v.Name
		entry["status"] = v.Status
		if v.PrevStatus != "" {
			entry["prev_status"] = v.PrevStatus
		}
		entry["efficiency"] = v.Efficiency
		if len(v.Capabilities) > 0 {
			entry["capabilities"] = v.Capabilities
		}
		if len(v.Metadata) > 0 {
			entry["metadata"] = v.Metadata
		}
	}

	var out []byte
	var err error
	if c.config.Pretty {
		out, err = json.MarshalIndent(entry, "", "  ")
	} else {
		out, err = json.Marshal(entry)
	}
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}

	c.logger.Println(string(out))
	return nil
}

// OnTaskCreated implements Callback
func (c *StructuredLoggingCallback) OnTaskCreated(ctx *TaskEventContext) error {
	return c.logEvent(LogLevelInfo, EventTaskCreated, ctx)
}

// OnTaskAssigned implements Callback
func (c *StructuredLoggingCallback) OnTaskAssigned(ctx *TaskEventContext) error {
	return c.logEvent(LogLevelInfo, EventTaskAssigned, ctx)
}

// OnTaskStarted implements Callback
func (c *StructuredLoggingCallback) OnTaskStarted(ctx *TaskEventContext) error {
	return c.logEvent(LogLevelDebug, EventTaskStarted, ctx)
}

// OnTaskCompleted implements Callback
func (c *StructuredLoggingCallback) OnTaskCompleted(ctx *TaskEventContext) error {
	return c.logEvent(LogLevelInfo, EventTaskCompleted, ctx)
}

// OnTaskFailed implements Callback
func (c *StructuredLoggingCallback) OnTaskFailed(ctx *TaskEventContext) error {
	return c.logEvent(LogLevelError, EventTaskFailed, ctx)
}

// OnAgentRegistered implements Callback
func (c *StructuredLoggingCallback) OnAgentRegistered(ctx *AgentEventContext) error {
	return c.logEvent(LogLevelInfo, EventAgentRegistered, ctx)
}

// OnAgentStatusChanged implements Callback
func (c *StructuredLoggingCallback) OnAgentStatusChanged(ctx *AgentEventContext) error {
	return c.logEvent(LogLevelDebug, EventAgentStatusChanged, ctx)
}
