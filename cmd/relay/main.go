// Package main is the entry point for the Relay CLI
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyflow/relay/internal/config"
)

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Coordination core for capability-tagged agent pools",
		Long: `Relay delegates typed tasks to a pool of capability-tagged agents,
executes them on a fixed-interval loop, and persists what it learns in a
knowledge store with a local fallback. Agent efficiency scores evolve with
task outcomes and steer future delegation.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(
		serveCmd(),
		delegateCmd(),
		workflowCmd(),
		statusCmd(),
		agentCmd(),
		knowledgeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
