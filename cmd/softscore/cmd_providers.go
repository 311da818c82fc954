package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ahrav/softscore/infrastructure/llm"
)

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List judge providers and whether they return log-probabilities",
		Long: `List the built-in judge providers.

Only providers that return token log-probabilities produce weighted
scores; the others yield discrete scores only. A provider is usable
once its API key environment variable is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := llm.NewRegistry(llm.RegistryConfig{
				Providers:       llm.DefaultProviders,
				DefaultProvider: "openai",
			})
			if err != nil {
				return err
			}
			printProviders(cmd.OutOrStdout(), registry.Describe())
			return nil
		},
	}
}

func printProviders(w io.Writer, infos []llm.ProviderInfo) {
	fmt.Fprintln(w, headerColor.Sprintf("%-10s %-28s %-8s  %s", "PROVIDER", "DEFAULT MODEL", "LOGPROBS", "API KEY"))
	for _, p := range infos {
		logprobs := warnColor.Sprintf("%-8s", "no")
		if p.LogProbs {
			logprobs = scoreColor.Sprintf("%-8s", "yes")
		}
		key := warnColor.Sprint(p.EnvVar + " unset")
		if p.Configured {
			key = scoreColor.Sprint(p.EnvVar)
		}
		fmt.Fprintf(w, "%-10s %-28s %s  %s\n", p.Name, p.DefaultModel, logprobs, key)
	}
}
