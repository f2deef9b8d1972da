package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flowline/internal/config"
	"github.com/aretw0/flowline/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "flowline",
	Short:         "Flowline runs workflow graphs of tools, branches and loops",
	Long:          `Flowline executes workflow graphs: nodes call tools on a shared state, edges branch on conditions, and loop nodes repeat until their condition or budget runs out.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path, os.Environ())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format, _ = cmd.Flags().GetString("log-format")
		}
		if cmd.Flags().Changed("store") {
			loaded.Store.Backend, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("max-steps") {
			loaded.Engine.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
		}
		if cmd.Flags().Changed("tools") {
			loaded.Tools.File, _ = cmd.Flags().GetString("tools")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		logger, err = logging.NewFromConfig(loaded.Log.Level, loaded.Log.Format)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("store", config.BackendMemory, "Store backend (memory, sqlite, redis)")
	rootCmd.PersistentFlags().Int("max-steps", 1000, "Step limit of a single run")
	rootCmd.PersistentFlags().String("tools", "", "Path to a YAML or JSON file of process tools")
}
