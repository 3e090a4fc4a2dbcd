package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/api"
	"github.com/jackzampolin/spires/version"
)

var (
	cfgFile        string
	homeDir        string
	outputFormat   string
	verbosity      int
	quiet          bool
	cacheDB        string
	skipAnnotators []string
)

var rootCmd = &cobra.Command{
	Use:   "spires",
	Short: "Schema-guided knowledge extraction with language models",
	Long: `Spires prompts a language model to fill schema-defined records from
unstructured text, then grounds the extracted mentions against ontologies.

Templates are LinkML-style YAML documents. Several are embedded
(see "spires list-templates"); any template file path works too.

Examples:
  spires extract -t mendelian_disease paper.txt
  spires generate-extract -t cell_type "cardiac muscle cell"
  spires iteratively-generate-extract -t metabolic_process -I has_participant glycolysis`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.spires/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "spires home directory (default: ~/.spires)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format for listings: yaml or json",
	)
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().StringVar(&cacheDB, "cache-db", "", "sqlite completion cache (default: ~/.spires/cache.db)")
	rootCmd.PersistentFlags().StringSliceVar(
		&skipAnnotators, "skip-annotator", nil, "annotator specs to skip, matched by prefix (e.g. ols:)",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		slog.SetDefault(newLogger())
		api.SetOutputFormat(outputFormat)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
