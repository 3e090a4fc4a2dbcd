package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/api"
	"github.com/jackzampolin/spires/internal/providers"
	"github.com/jackzampolin/spires/internal/schema"
)

var (
	dumpMatch    string
	dumpDatabase string
)

var dumpCompletionsCmd = &cobra.Command{
	Use:   "dump-completions",
	Short: "List cached completions",
	Long: `List the prompt/completion pairs in the completion cache. --match keeps
entries whose prompt or completion contains the string, ignoring case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.openCache(cmd.Context(), dumpDatabase)
		if err != nil {
			return err
		}
		entries, err := store.Entries(cmd.Context(), dumpMatch)
		if err != nil {
			return err
		}
		return api.Output(entries)
	},
}

var listTemplatesCmd = &cobra.Command{
	Use:   "list-templates",
	Short: "List the embedded templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := schema.Templates()
		if err != nil {
			return err
		}
		return api.Output(infos)
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List known models and their providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := providers.Models()
		if err != nil {
			return err
		}

		type row struct {
			Name             string   `json:"name" yaml:"name"`
			Provider         string   `json:"provider" yaml:"provider"`
			AlternativeNames []string `json:"alternative_names,omitempty" yaml:"alternative_names,omitempty"`
			Status           string   `json:"status" yaml:"status"`
		}
		rows := make([]row, 0, len(models))
		for _, m := range models {
			rows = append(rows, row{Name: m.Name, Provider: m.Provider, AlternativeNames: m.AlternativeNames, Status: m.Status()})
		}
		return api.Output(rows)
	},
}

func init() {
	dumpCompletionsCmd.Flags().StringVarP(&dumpMatch, "match", "M", "", "only entries containing this string")
	dumpCompletionsCmd.Flags().StringVarP(&dumpDatabase, "database", "D", "", "sqlite cache file (default: --cache-db or config)")

	rootCmd.AddCommand(dumpCompletionsCmd, listTemplatesCmd, listModelsCmd)
}
