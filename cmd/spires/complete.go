package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/api"
	"github.com/jackzampolin/spires/internal/completion"
	"github.com/jackzampolin/spires/internal/ingest"
	"github.com/jackzampolin/spires/internal/llmcall"
)

var (
	completeModel  modelFlags
	completeSystem string
)

var completeCmd = &cobra.Command{
	Use:   "complete INPUT",
	Short: "Send a prompt to the model and print the completion",
	Long:  `INPUT is a file path, "-" for standard input, or the prompt text itself.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := ingest.Read(ctx, ingest.Request{Inputs: args, Stdin: cmd.InOrStdin(), Logger: a.logger})
		if err != nil {
			return err
		}
		client, err := a.completionClient(ctx, &completeModel)
		if err != nil {
			return err
		}
		system, err := readOptionalFile(completeSystem)
		if err != nil {
			return err
		}

		opts := a.completeOptions(cmd, &completeModel)
		for _, doc := range docs {
			payload, err := client.ChatCompletion(
				completion.WithRecordOptions(ctx, llmcall.RecordOptions{Operation: "complete"}), doc.Text, system, opts,
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
		}
		return nil
	},
}

var (
	parseTemplate string
	parseClass    string
	parseInput    string
	parseResults  resultFlags
	parseDict     string
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse and ground a completion obtained elsewhere",
	Long: `Parse a raw "field: value" completion (from --input or standard input)
against a template and ground it. The model is never called.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.loadSchema(parseTemplate)
		if err != nil {
			return err
		}
		eng, err := a.newEngine(cmd, s, noModel{}, &engineFlags{dictionary: parseDict}, completion.DefaultOptions())
		if err != nil {
			return err
		}
		cls, err := eng.RootClassOrNamed(parseClass)
		if err != nil {
			return err
		}

		var payload []byte
		if parseInput == "" || parseInput == ingest.Stdin {
			payload, err = io.ReadAll(cmd.InOrStdin())
		} else {
			payload, err = os.ReadFile(parseInput)
		}
		if err != nil {
			return fmt.Errorf("failed to read completion: %w", err)
		}

		res, err := eng.ParseCompletion(ctx, string(payload), cls, nil)
		if err != nil {
			return err
		}
		out, err := parseResults.open(cmd)
		if err != nil {
			return err
		}
		defer out.Close()
		return out.Write(res)
	},
}

// noModel is the completer of commands that must not reach a model.
type noModel struct{}

func (noModel) Complete(context.Context, string, completion.CompleteOptions) (string, error) {
	return "", errors.New("this command does not call a model")
}

var (
	mapTermsModel    modelFlags
	mapTermsOntology string
	mapTermsTemplate string
)

var mapTermsCmd = &cobra.Command{
	Use:   "map-terms TERM...",
	Short: "Normalize free-text terms to ontology labels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eng, err := a.modelEngine(cmd, &engineFlags{template: mapTermsTemplate}, &mapTermsModel)
		if err != nil {
			return err
		}
		mappings, err := eng.MapTerms(cmd.Context(), args, mapTermsOntology)
		if err != nil {
			return err
		}

		type mapping struct {
			Term   string `json:"term" yaml:"term"`
			Mapped string `json:"mapped" yaml:"mapped"`
		}
		out := make([]mapping, 0, len(mappings))
		for _, t := range args {
			if m, ok := mappings[t]; ok {
				out = append(out, mapping{Term: t, Mapped: m})
			}
		}
		return api.Output(out)
	},
}

func init() {
	addModelFlags(completeCmd, &completeModel)
	completeCmd.Flags().StringVar(&completeSystem, "system-prompt", "", "file holding a system prompt")

	parseCmd.Flags().StringVarP(&parseTemplate, "template", "t", "", "template name or path (default: defaults.template)")
	parseCmd.Flags().StringVarP(&parseClass, "target-class", "T", "", "class to parse as (default: template root)")
	parseCmd.Flags().StringVarP(&parseInput, "input", "i", "", "completion file (default: standard input)")
	parseCmd.Flags().StringVar(&parseDict, "dictionary", "", "YAML dictionary of terms used for grounding")
	addResultFlags(parseCmd, &parseResults)

	addModelFlags(mapTermsCmd, &mapTermsModel)
	mapTermsCmd.Flags().StringVarP(&mapTermsOntology, "ontology", "r", "uberon", "target ontology (go or uberon examples)")
	mapTermsCmd.Flags().StringVarP(&mapTermsTemplate, "template", "t", "", "template whose model settings apply (default: defaults.template)")

	rootCmd.AddCommand(completeCmd, parseCmd, mapTermsCmd)
}
