package callbacks

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// MetricType represents the type of Prometheus metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Type   MetricType
	Name   string
	Help   string
	Value  float64
	Labels map[string]string
}

// MetricsCallback implements Callback with Prometheus-compatible metrics
// tracking for task and agent lifecycle events.
type MetricsCallback struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// NewMetricsCallback creates a new metrics callback
func NewMetricsCallback() *MetricsCallback {
	return &MetricsCallback{
		metrics: make(map[string]*Metric),
	}
}

// Increment increments a counter metric
func (m *MetricsCallback) Increment(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := m.metrics[key]; exists {
		metric.Value++
	} else {
		m.metrics[key] = &Metric{
			Type:   MetricTypeCounter,
			Name:   name,
			Help:   fmt.Sprintf("Counter metric: %s", name),
			Value:  1,
			Labels: labels,
		}
	}
}

// Gauge sets a gauge metric value
func (m *MetricsCallback) Gauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := metricKey(name, labels)
	m.metrics[key] = &Metric{
		Type:   MetricTypeGauge,
		Name:   name,
		Help:   fmt.Sprintf("Gauge metric: %s", name),
		Value:  value,
		Labels: labels,
	}
}

// Observe records a value in a histogram metric. The implementation tracks
// the running sum; bucketing is left to the scrape side.
func (m *MetricsCallback) Observe(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := m.metrics[key]; exists {
		metric.Value += value
	} else {
		m.metrics[key] = &Metric{
			Type:   MetricTypeHistogram,
			Name:   name,
			Help:   fmt.Sprintf("Histogram metric: %s", name),
			Value:  value,
			Labels: labels,
		}
	}
}

// Get returns the current value of a metric, or false if it does not exist
func (m *MetricsCallback) Get(name string, labels map[string]string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metric, ok := m.metrics[metricKey(name, labels)]
	if !ok {
		return 0, false
	}
	return metric.Value, true
}

// metricKey generates a unique key for a metric with labels
func metricKey(name string, labels map[string]string) string {
	key := name

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key += fmt.Sprintf(";%s=%s", k, labels[k])
	}
	return key
}

// WritePrometheus writes all metrics in Prometheus text exposition format
func (m *MetricsCallback) WritePrometheus(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.metrics))
	for k := range m.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		metric := m.metrics[k]
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", metric.Name, metric.Help, metric.Name, metric.Type); err != nil {
			return err
		}

		labels := ""
		if len(metric.Labels) > 0 {
			labelKeys := make([]string, 0, len(metric.Labels))
			for lk := range metric.Labels {
				labelKeys = append(labelKeys, lk)
			}
			sort.Strings(labelKeys)

			labels = "{"
			for i, lk := range labelKeys {
				if i > 0 {
					labels += ","
				}
				labels += fmt.Sprintf("%s=%q", lk, metric.Labels[lk])
			}
			labels += "}"
		}

		if _, err := fmt.Fprintf(w, "%s%s %g\n", metric.Name, labels, metric.Value); err != nil {
			return err
		}
	}
	return nil
}

// OnTaskCreated implements Callback
func (m *MetricsCallback) OnTaskCreated(ctx *TaskEventContext) error {
	m.Increment("relay_tasks_created_total", map[string]string{"priority": ctx.Priority})
	return nil
}

// OnTaskAssigned implements Callback
func (m *MetricsCallback) OnTaskAssigned(ctx *TaskEventContext) error {
	m.Increment("relay_tasks_assigned_total", map[string]string{"agent": ctx.AgentID})
	return nil
}

// OnTaskStarted implements Callback
func (m *MetricsCallback) OnTaskStarted(ctx *TaskEventContext) error {
	m.Increment("relay_tasks_started_total", nil)
	return nil
}

// OnTaskCompleted implements Callback
func (m *MetricsCallback) OnTaskCompleted(ctx *TaskEventContext) error {
	m.Increment("relay_tasks_completed_total", map[string]string{"agent": ctx.AgentID})
	if ctx.Duration != nil {
		m.Observe("relay_task_duration_seconds", ctx.Duration.Seconds(), nil)
	}
	return nil
}

// OnTaskFailed implements Callback
func (m *MetricsCallback) OnTaskFailed(ctx *TaskEventContext) error {
	m.Increment("relay_tasks_failed_total", map[string]string{"agent": ctx.AgentID, "error_type": ctx.ErrorType})
	return nil
}

// OnAgentRegistered implements Callback
func (m *MetricsCallback) OnAgentRegistered(ctx *AgentEventContext) error {
	m.Increment("relay_agents_registered_total", nil)
	return nil
}

// OnAgentStatusChanged implements Callback
func (m *MetricsCallback) OnAgentStatusChanged(ctx *AgentEventContext) error {
	m.Gauge("relay_agent_efficiency", ctx.Efficiency, map[string]string{"agent": ctx.AgentID})
	return nil
}
