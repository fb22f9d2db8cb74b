package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/studyflow/relay/internal/knowledge"
)

const cliRequester = "cli"

// openKnowledge builds the knowledge service over the configured SQLite
// database with a local in-memory fallback
func openKnowledge() (*knowledge.Service, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	primary, err := knowledge.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}

	storage := knowledge.NewFallbackStorage(primary, knowledge.NewMemoryStorage(), log.Default())
	return knowledge.NewService(storage, log.Default(), nil), nil
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Read and write the knowledge store",
	}

	cmd.AddCommand(
		knowledgeStoreCmd(),
		knowledgeGetCmd(),
		knowledgeQueryCmd(),
		knowledgeSearchCmd(),
	)
	return cmd
}

func knowledgeStoreCmd() *cobra.Command {
	var confidence float64
	var source string

	cmd := &cobra.Command{
		Use:   "store <category> <key> <value>",
		Short: "Store a fact; the value is parsed as JSON when possible",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openKnowledge()
			if err != nil {
				return err
			}
			defer svc.Close()

			// Accept structured values without forcing callers to quote
			// plain strings as JSON
			var value any
			if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
				value = args[2]
			}

			id, err := svc.Store(cmd.Context(), args[0], args[1], value, source, confidence)
			if err != nil {
				return err
			}
			fmt.Printf("📚 Stored %s\n", id)
			return nil
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "confidence weight in [0, 1]")
	cmd.Flags().StringVar(&source, "source", cliRequester, "source identity recorded on the entry")
	return cmd
}

func knowledgeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <category> <key>",
		Short: "Retrieve a single fact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openKnowledge()
			if err != nil {
				return err
			}
			defer svc.Close()

			value, err := svc.Retrieve(cmd.Context(), args[0], args[1], cliRequester)
			if err != nil {
				return err
			}
			return printJSON(value)
		},
	}
}

func knowledgeQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <term>",
		Short: "Find entries whose category, key, or value contains the term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openKnowledge()
			if err != nil {
				return err
			}
			defer svc.Close()

			entries, err := svc.Query(cmd.Context(), args[0], cliRequester)
			if err != nil {
				return err
			}

			fmt.Printf("Found %d matching entries\n", len(entries))
			return printJSON(entries)
		},
	}
}

func knowledgeSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Full-text search over stored entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openKnowledge()
			if err != nil {
				return err
			}
			defer svc.Close()

			entries, err := svc.Search(cmd.Context(), args[0], cliRequester)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
}
