package main

import (
	"fmt"
	"os"

	"github.com/aretw0/flowline/internal/cli"
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <graph.yaml|graph.json>",
	Short: "Run a graph file locally and print a report",
	Long:  `Loads a graph document, runs it from its initial_state (merged with --state) and prints the execution report.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		output, _ := cmd.Flags().GetString("output")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		stack, err := cli.NewStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Engine.Close()

		run, err := cli.RunFile(ctx, stack.Engine, cli.RunOptions{
			Path:   args[0],
			State:  state,
			Output: output,
			TTY:    cli.IsTerminal(os.Stdout),
		}, os.Stdout, logger)
		if err != nil {
			return err
		}
		if run.Status == domain.RunFailed {
			return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("state", "s", "", "Initial state as a JSON object, merged over the file's initial_state")
	runCmd.Flags().StringP("output", "o", cli.OutputMarkdown, "Report format (markdown, json, mermaid)")
}
