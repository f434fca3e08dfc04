package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garnizeh/estate/pkg/ollama"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Language model utilities",
}

var llmPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the Ollama server is reachable and has the configured models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := ollama.NewDefaultClient(cfg.Ollama)
		if err != nil {
			return err
		}
		defer client.Close()

		models, err := client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		if err := client.Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ollama at %s is healthy\n", cfg.Ollama.BaseURL)
		return nil
	},
}

func init() {
	llmCmd.AddCommand(llmPingCmd)
	rootCmd.AddCommand(llmCmd)
}
