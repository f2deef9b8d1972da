package main

import (
	"os"

	"github.com/aretw0/flowline/internal/cli"
	"github.com/aretw0/flowline/pkg/definition"
	"github.com/aretw0/flowline/pkg/workflows/codereview"
	"github.com/spf13/cobra"
)

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print or run the built-in code review workflow",
	Long:  `Prints the code review workflow as a graph document, ready for "flowline run". With --run it executes the workflow on the bundled sample code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		run, _ := cmd.Flags().GetBool("run")
		format, _ := cmd.Flags().GetString("format")

		if !run {
			data, err := definition.Encode(codereview.Definition(), codereview.ExampleState(), definition.Format(format))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		stack, err := cli.NewStack(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Engine.Close()

		g, err := codereview.Graph(codereview.GraphID)
		if err != nil {
			return err
		}
		result, err := stack.Engine.Execute(cmd.Context(), g, codereview.ExampleState())
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return cli.WriteReport(cmd.OutOrStdout(), g, result, cli.RunOptions{
			Output: output,
			TTY:    cli.IsTerminal(os.Stdout),
		})
	},
}

func init() {
	rootCmd.AddCommand(exampleCmd)
	exampleCmd.Flags().Bool("run", false, "Execute the workflow instead of printing it")
	exampleCmd.Flags().StringP("format", "f", string(definition.FormatYAML), "Document format when printing (yaml, json)")
	exampleCmd.Flags().StringP("output", "o", cli.OutputMarkdown, "Report format with --run (markdown, json, mermaid)")
}
