package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyflow/relay/internal/callbacks"
	"github.com/studyflow/relay/internal/dispatch"
	"github.com/studyflow/relay/internal/engine"
	"github.com/studyflow/relay/internal/events"
	"github.com/studyflow/relay/internal/knowledge"
	"github.com/studyflow/relay/internal/maintenance"
	"github.com/studyflow/relay/internal/queue"
	"github.com/studyflow/relay/internal/registry"
	"github.com/studyflow/relay/internal/workflow"
	"github.com/studyflow/relay/pkg/types"
)

// core wires the full coordination stack for one process
type core struct {
	registry   *registry.Registry
	queue      *queue.Queue
	tracker    *dispatch.Tracker
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine
	workflows  *workflow.Engine
	knowledge  *knowledge.Service
	sqlite     *knowledge.SQLiteStorage
	bus        *events.Bus
	hooks      *callbacks.Registry
}

// buildCore assembles the registry, queue, dispatcher, engine, and
// knowledge store from the loaded configuration
func buildCore() (*core, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	primary, err := knowledge.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}

	logger := log.Default()
	storage := knowledge.NewFallbackStorage(primary, knowledge.NewMemoryStorage(), logger)

	bus := events.NewBus()
	hooks := callbacks.NewRegistry()
	hooks.Register(callbacks.NewMetricsCallback(), []callbacks.EventType{
		callbacks.EventTaskCreated,
		callbacks.EventTaskStarted,
		callbacks.EventTaskCompleted,
		callbacks.EventTaskFailed,
	}, callbacks.PriorityLow, "metrics")
	hooks.Register(callbacks.NewOTelCallback(), []callbacks.EventType{
		callbacks.EventTaskCreated,
		callbacks.EventTaskAssigned,
		callbacks.EventTaskStarted,
		callbacks.EventTaskCompleted,
		callbacks.EventTaskFailed,
		callbacks.EventAgentRegistered,
		callbacks.EventAgentStatusChanged,
	}, callbacks.PriorityLow, "otel")
	if cfg.Verbose {
		hooks.Register(callbacks.NewStructuredLoggingCallback(callbacks.LoggingConfig{}),
			[]callbacks.EventType{
				callbacks.EventTaskStarted,
				callbacks.EventTaskCompleted,
				callbacks.EventTaskFailed,
			}, callbacks.PriorityHigh, "structured-log")
	}

	ks := knowledge.NewService(storage, logger, bus)
	reg := registry.New()
	q := queue.New()
	tracker := dispatch.NewTracker()
	dispatcher := dispatch.New(reg, q, tracker, bus)

	eng := engine.New(engine.Options{
		Workers:      cfg.Workers,
		TickInterval: cfg.TickInterval,
		TaskTimeout:  cfg.TaskTimeout,
	}, reg, q, tracker, ks, hooks, bus, logger)

	return &core{
		registry:   reg,
		queue:      q,
		tracker:    tracker,
		dispatcher: dispatcher,
		engine:     eng,
		workflows:  workflow.New(dispatcher, bus, logger),
		knowledge:  ks,
		sqlite:     primary,
		bus:        bus,
		hooks:      hooks,
	}, nil
}

func (c *core) close() {
	c.bus.Close()
	if err := c.knowledge.Close(); err != nil {
		log.Printf("⚠️  Closing knowledge store: %v", err)
	}
}

// agentSpec is the JSON shape of one entry in an --agents file
type agentSpec struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Capabilities   []string `json:"capabilities"`
	Specialization string   `json:"specialization,omitempty"`
	Priority       string   `json:"priority,omitempty"`
}

// loadAgentSpecs parses an agents file into registrations
func loadAgentSpecs(path string) ([]registry.Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}

	var specs []agentSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing agents file: %w", err)
	}

	regs := make([]registry.Registration, 0, len(specs))
	for _, spec := range specs {
		regs = append(regs, registry.Registration{
			ID:             spec.ID,
			Name:           spec.Name,
			Type:           spec.Type,
			Capabilities:   spec.Capabilities,
			Specialization: spec.Specialization,
			Priority:       types.Priority(spec.Priority),
		})
	}
	return regs, nil
}

// registerAgentsFromFile loads an agent pool definition, registers every
// entry, and announces each registration on the bus and callback registry
func registerAgentsFromFile(c *core, path string) error {
	regs, err := loadAgentSpecs(path)
	if err != nil {
		return err
	}

	for _, reg := range regs {
		agent, err := c.registry.Register(reg)
		if err != nil {
			return fmt.Errorf("registering agent %s: %w", reg.ID, err)
		}

		if c.bus != nil {
			c.bus.Publish(events.NewEvent(events.EventAgentRegistered, "", agent.ID, map[string]any{
				"capabilities": agent.Capabilities,
			}))
		}
		if c.hooks != nil {
			_ = c.hooks.DispatchAgent(callbacks.EventAgentRegistered, &callbacks.AgentEventContext{
				AgentID:      agent.ID,
				Name:         agent.Name,
				Status:       string(agent.Status),
				Efficiency:   agent.Efficiency,
				Capabilities: agent.Capabilities,
				Timestamp:    time.Now(),
			})
		}

		log.Printf("🤖 Registered agent %s (%v)", agent.ID, agent.Capabilities)
	}
	return nil
}

func serveCmd() *cobra.Command {
	var agentsFile string
	var workflowsFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination core until interrupted",
		Long: `Start the execution engine, the maintenance scheduler, and the
knowledge store, register the agent pool, and run until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.close()

			if agentsFile != "" {
				if err := registerAgentsFromFile(c, agentsFile); err != nil {
					return err
				}
			}
			if workflowsFile != "" {
				if err := registerWorkflowsFromFile(c, workflowsFile); err != nil {
					return err
				}
			}

			sched := maintenance.New(log.Default())
			if err := sched.SchedulePrune(cfg.MaintenanceSpec, c.sqlite, cfg.AccessLogRetention); err != nil {
				return err
			}
			if err := sched.ScheduleStats(cfg.MaintenanceSpec, c.dispatcher.SystemStatus, c.knowledge.Count); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			if err := c.engine.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentsFile, "agents", "", "JSON file describing the agent pool")
	cmd.Flags().StringVar(&workflowsFile, "workflows", "", "JSON file with workflow definitions")
	return cmd
}

func delegateCmd() *cobra.Command {
	var agentsFile string
	var taskType string
	var priority string
	var paramsJSON string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Delegate a single task and wait for its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskType == "" {
				return fmt.Errorf("--type is required")
			}

			var parameters map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &parameters); err != nil {
					return fmt.Errorf("parsing --params: %w", err)
				}
			}

			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.close()

			if agentsFile == "" {
				return fmt.Errorf("--agents is required")
			}
			if err := registerAgentsFromFile(c, agentsFile); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() { _ = c.engine.Run(ctx) }()

			taskID, err := c.dispatcher.Delegate(ctx, taskType, parameters, types.Priority(priority))
			if err != nil {
				return err
			}
			fmt.Printf("📨 Delegated task %s\n", taskID)

			task, err := waitForTasks(c.dispatcher, []string{taskID}, wait)
			if err != nil {
				return err
			}
			return printJSON(task[0])
		},
	}

	cmd.Flags().StringVar(&agentsFile, "agents", "", "JSON file describing the agent pool")
	cmd.Flags().StringVar(&taskType, "type", "", "task type to delegate")
	cmd.Flags().StringVar(&priority, "priority", "medium", "task priority (critical, high, medium, low)")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "task parameters as JSON")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long to wait for completion")
	return cmd
}

func workflowCmd() *cobra.Command {
	var agentsFile string
	var defFile string
	var paramsJSON string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Execute a workflow definition and wait for its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if defFile == "" || agentsFile == "" {
				return fmt.Errorf("--file and --agents are required")
			}

			var parameters map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &parameters); err != nil {
					return fmt.Errorf("parsing --params: %w", err)
				}
			}

			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.close()

			if err := registerAgentsFromFile(c, agentsFile); err != nil {
				return err
			}

			data, err := os.ReadFile(defFile)
			if err != nil {
				return fmt.Errorf("reading workflow file: %w", err)
			}
			var def types.WorkflowDefinition
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("parsing workflow file: %w", err)
			}
			if err := c.workflows.Register(def); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() { _ = c.engine.Run(ctx) }()

			results, err := c.workflows.Execute(ctx, def.Name, parameters)
			if err != nil {
				return err
			}

			var ids []string
			for _, r := range results {
				if r.TaskID != "" {
					ids = append(ids, r.TaskID)
				}
			}
			if _, err := waitForTasks(c.dispatcher, ids, wait); err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	cmd.Flags().StringVar(&agentsFile, "agents", "", "JSON file describing the agent pool")
	cmd.Flags().StringVar(&defFile, "file", "", "JSON workflow definition")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "workflow parameters as JSON")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "how long to wait for step tasks")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show knowledge store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			primary, err := knowledge.OpenSQLite(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("opening knowledge store: %w", err)
			}
			defer primary.Close()

			count, err := primary.CountEntries(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("📚 Relay Knowledge Store")
			fmt.Printf("   Database: %s\n", cfg.DatabasePath)
			fmt.Printf("   Entries:  %d\n", count)
			return nil
		},
	}
}

// registerWorkflowsFromFile loads a JSON array of workflow definitions
func registerWorkflowsFromFile(c *core, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading workflows file: %w", err)
	}

	var defs []types.WorkflowDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("parsing workflows file: %w", err)
	}

	for _, def := range defs {
		if err := c.workflows.Register(def); err != nil {
			return err
		}
		log.Printf("🔀 Registered workflow %s (%d steps)", def.Name, len(def.Steps))
	}
	return nil
}

// waitForTasks polls until every task reaches a terminal state or the
// timeout elapses
func waitForTasks(d *dispatch.Dispatcher, ids []string, timeout time.Duration) ([]types.Task, error) {
	deadline := time.Now().Add(timeout)
	for {
		tasks := make([]types.Task, 0, len(ids))
		done := true
		for _, id := range ids {
			task, err := d.TaskStatus(id)
			if err != nil {
				return nil, err
			}
			if !task.Terminal() {
				done = false
				break
			}
			tasks = append(tasks, task)
		}
		if done {
			return tasks, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for %d tasks after %v", len(ids), timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
