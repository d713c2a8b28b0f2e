package main

import (
	"fmt"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/anvil/internal/config"
	"github.com/mpataki/anvil/internal/logging"
	"github.com/mpataki/anvil/internal/orchestrator"
	"github.com/mpataki/anvil/internal/storage"
	"github.com/mpataki/anvil/internal/tui"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "anvil",
		Short: "Single-task agent orchestrator",
		Long:  "Anvil baselines a workspace, drives one Claude Code session against it, and emits an auditable artifact bundle.",
		RunE:  runTask,
	}
	addRunFlags(rootCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one agent task (the default command)",
		RunE:  runTask,
	}
	addRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "input directory holding spec.yaml and prompts/ (overrides ANVIL_INPUT_DIR)")
	cmd.Flags().String("workspace", "", "workspace directory the agent mutates (overrides ANVIL_WORKSPACE_DIR)")
	cmd.Flags().String("output", "", "output directory for the artifact bundle (overrides ANVIL_OUTPUT_DIR)")
	cmd.Flags().String("claude-bin", "", "agent CLI binary (overrides ANVIL_CLAUDE_BIN)")
	cmd.Flags().String("log-level", "", "debug, info, progress, or minimal (overrides ANVIL_LOG_LEVEL)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("input"); v != "" {
		cfg.InputDir = v
	}
	if v, _ := cmd.Flags().GetString("workspace"); v != "" {
		cfg.WorkspaceDir = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.OutputDir = v
	}
	if v, _ := cmd.Flags().GetString("claude-bin"); v != "" {
		cfg.ClaudeBin = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	// The ledger is a convenience; a broken one must not stop the run.
	store := openLedger(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	orch := orchestrator.New(cfg, logger, store)
	if err := orch.Run(); err != nil {
		return err
	}
	return nil
}

func openLedger(cfg *config.Config, logger *logging.Logger) *storage.Storage {
	if err := cfg.EnsureDataDir(); err != nil {
		logger.Warn("run ledger unavailable: %v", err)
		return nil
	}
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logger.Warn("run ledger unavailable: %v", err)
		return nil
	}
	return store
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Browse past runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return err
			}

			store, err := storage.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open run ledger: %w", err)
			}
			defer store.Close()

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}

			orch := orchestrator.New(cfg, logger, store)
			app := tui.NewApp(orch)
			p := tea.NewProgram(app, tea.WithAltScreen())

			_, err = p.Run()
			return err
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return err
			}

			store, err := storage.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListRecords(20)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			for _, rec := range records {
				fmt.Printf("#%d [%s] %s %s\n",
					rec.ID, rec.Outcome, storage.FormatTimeAgo(rec.CreatedAt),
					truncate(rec.Goal, 50))
			}

			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			cfg, err := config.New()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return err
			}

			store, err := storage.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteRecord(id); err != nil {
				return err
			}

			fmt.Printf("Deleted run #%d\n", id)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("anvil %s\n", version)
		},
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
