package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyflow/relay/internal/registry"
)

// registerSpecs registers every entry of an agents file into reg without
// announcing lifecycle events; inspection commands have no live core
func registerSpecs(reg *registry.Registry, path string) error {
	specs, err := loadAgentSpecs(path)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if _, err := reg.Register(spec); err != nil {
			return fmt.Errorf("registering agent %s: %w", spec.ID, err)
		}
	}
	return nil
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect and validate agent pool definitions",
	}

	cmd.AddCommand(
		agentRegisterCmd(),
		agentListCmd(),
	)
	return cmd
}

// agentRegisterCmd validates an agent pool file by registering every entry
// into a fresh registry
func agentRegisterCmd() *cobra.Command {
	var agentsFile string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Validate an agent pool file and report the resulting pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentsFile == "" {
				return fmt.Errorf("--file is required")
			}

			reg := registry.New()
			if err := registerSpecs(reg, agentsFile); err != nil {
				return err
			}

			fmt.Printf("✅ Registered %d agents from %s\n", reg.Len(), agentsFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentsFile, "file", "", "JSON file describing the agent pool")
	return cmd
}

// agentListCmd prints the pool an agents file would register, including
// initial efficiency and status
func agentListCmd() *cobra.Command {
	var agentsFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the agent pool an agents file describes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentsFile == "" {
				return fmt.Errorf("--file is required")
			}

			reg := registry.New()
			if err := registerSpecs(reg, agentsFile); err != nil {
				return err
			}

			return printJSON(reg.List())
		},
	}

	cmd.Flags().StringVar(&agentsFile, "file", "", "JSON file describing the agent pool")
	return cmd
}
