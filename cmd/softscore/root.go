package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ahrav/softscore/internal/log"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "softscore",
		Short: "Score LLM judge replies using token log-probabilities",
		Long: `softscore turns the replies of an LLM judge into rubric scores.

Besides the discrete score the judge emitted, it computes a
probability-weighted score from the log-probabilities of the candidate
score tokens, and aggregates results per rubric.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	logLevel := cmd.PersistentFlags().String("log-level", log.LevelInfo, "Log level: debug, info, warn or error")
	noColor := cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log.SetLevel(*logLevel)
		if *noColor {
			color.NoColor = true
			log.SetColor(false)
		}
	}

	cmd.AddCommand(newScoreCommand())
	cmd.AddCommand(newEvalCommand())
	cmd.AddCommand(newProvidersCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
