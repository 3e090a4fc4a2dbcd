package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/ingest"
	"github.com/jackzampolin/spires/internal/spires"
)

var (
	extractEngine  engineFlags
	extractModel   modelFlags
	extractResults resultFlags
	extractClass   string
	extractInputs  []string
	extractTitle   string
	extractSlots   []string
)

var extractCmd = &cobra.Command{
	Use:   "extract [INPUT...]",
	Short: "Extract structured objects from text",
	Long: `Extract an object of the template's root class (or --target-class) from
each input. An input is a file, a directory of .txt/.md/.pdf files, "-" for
standard input, or literal text. With no input, standard input is read.

Examples:
  spires extract -t mendelian_disease marfan.txt
  spires extract -t cell_type -T CellType "the cardiac muscle cell"
  spires extract -t traits -S source=pubmed -O jsonl papers/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eng, err := a.modelEngine(cmd, &extractEngine, &extractModel)
		if err != nil {
			return err
		}
		cls, err := eng.RootClassOrNamed(extractClass)
		if err != nil {
			return err
		}

		inputs := append(append([]string(nil), extractInputs...), args...)
		if len(inputs) == 0 {
			inputs = []string{ingest.Stdin}
		}
		docs, err := ingest.Read(ctx, ingest.Request{
			Inputs: inputs,
			Stdin:  cmd.InOrStdin(),
			Title:  extractTitle,
			Logger: a.logger,
		})
		if err != nil {
			return err
		}

		out, err := extractResults.open(cmd)
		if err != nil {
			return err
		}
		defer out.Close()

		for _, doc := range docs {
			a.logger.Info("extracting", "input", doc.ID, "class", cls.Name, "chars", len(doc.Text))
			res, err := eng.ExtractFromText(ctx, doc.Text, spires.ExtractOptions{
				Class:      cls,
				InputID:    doc.ID,
				InputTitle: doc.Title,
			})
			if err != nil {
				return fmt.Errorf("extract %s: %w", doc.ID, err)
			}
			if len(extractSlots) > 0 && res.ExtractedObject != nil {
				if err := spires.ApplySlotValues(res.ExtractedObject, extractSlots); err != nil {
					return err
				}
			}
			if err := out.Write(res); err != nil {
				return err
			}
		}
		return nil
	},
}

var (
	generateEngine  engineFlags
	generateModel   modelFlags
	generateResults resultFlags
	generatePrompt  string
)

var generateExtractCmd = &cobra.Command{
	Use:   "generate-extract ENTITY",
	Short: "Generate a description of an entity, then extract from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eng, err := a.modelEngine(cmd, &generateEngine, &generateModel)
		if err != nil {
			return err
		}
		promptTemplate, err := readOptionalFile(generatePrompt)
		if err != nil {
			return err
		}

		res, err := eng.GenerateAndExtract(cmd.Context(), args[0], promptTemplate, spires.ExtractOptions{InputID: args[0]})
		if err != nil {
			return err
		}

		out, err := generateResults.open(cmd)
		if err != nil {
			return err
		}
		defer out.Close()
		return out.Write(res)
	},
}

var (
	iterateEngine  engineFlags
	iterateModel   modelFlags
	iterateResults resultFlags
	iteratePrompt  string
	iterateSlots   []string
	iterateMax     int
	iterateDB      string
	iterateClear   bool
)

var iterateCmd = &cobra.Command{
	Use:   "iteratively-generate-extract ENTITY",
	Short: "Repeat generate-extract over the entities each result mentions",
	Long: `Starting from ENTITY, generate a description and extract from it, then queue
the values of the --iteration-slot slots as the next entities. Progress is
saved after every iteration to the --db file, so an interrupted run resumes
where it stopped unless --clear is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eng, err := a.modelEngine(cmd, &iterateEngine, &iterateModel)
		if err != nil {
			return err
		}
		promptTemplate, err := readOptionalFile(iteratePrompt)
		if err != nil {
			return err
		}
		db := iterateDB
		if db == "" {
			db = a.home.IterationCachePath(args[0])
		}

		out, err := iterateResults.open(cmd)
		if err != nil {
			return err
		}
		defer out.Close()

		a.logger.Info("iterating", "entity", args[0], "state", db, "slots", iterateSlots)
		return eng.IterativelyGenerateAndExtract(cmd.Context(), spires.IterateOptions{
			Entity:         args[0],
			CachePath:      db,
			IterationSlots: iterateSlots,
			Clear:          iterateClear,
			MaxIterations:  iterateMax,
			PromptTemplate: promptTemplate,
		}, out.Write)
	},
}

var (
	fillEngine   engineFlags
	fillModel    modelFlags
	fillResults  resultFlags
	fillExamples string
)

var fillCmd = &cobra.Command{
	Use:   "fill OBJECT",
	Short: "Fill the missing fields of a partial object from examples",
	Long: `OBJECT is a YAML mapping of the root class, inline or as a file path.
--examples names a YAML file holding a list of complete objects (or a
mapping with an "examples" list).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eng, err := a.modelEngine(cmd, &fillEngine, &fillModel)
		if err != nil {
			return err
		}
		root, err := eng.Schema().RootClass()
		if err != nil {
			return err
		}

		data := []byte(args[0])
		if fileExists(args[0]) {
			if data, err = os.ReadFile(args[0]); err != nil {
				return err
			}
		}
		partial, err := spires.ParseObject(data, root.Name)
		if err != nil {
			return err
		}

		var examples []*spires.Object
		if fillExamples != "" {
			b, err := os.ReadFile(fillExamples)
			if err != nil {
				return err
			}
			if examples, err = spires.ParseObjects(b, root.Name); err != nil {
				return err
			}
		}

		res, err := eng.Generalize(cmd.Context(), partial, examples)
		if err != nil {
			return err
		}
		out, err := fillResults.open(cmd)
		if err != nil {
			return err
		}
		defer out.Close()
		return out.Write(res)
	},
}

func init() {
	addEngineFlags(extractCmd, &extractEngine)
	addModelFlags(extractCmd, &extractModel)
	addResultFlags(extractCmd, &extractResults)
	extractCmd.Flags().StringVarP(&extractClass, "target-class", "T", "", "class to extract (default: template root)")
	extractCmd.Flags().StringArrayVarP(&extractInputs, "inputfile", "i", nil, "input file or directory (repeatable)")
	extractCmd.Flags().StringVar(&extractTitle, "title", "", "title recorded for a single input")
	extractCmd.Flags().StringArrayVarP(&extractSlots, "set-slot-value", "S", nil, "set a slot on the result, e.g. -S source=pubmed")

	addEngineFlags(generateExtractCmd, &generateEngine)
	addModelFlags(generateExtractCmd, &generateModel)
	addResultFlags(generateExtractCmd, &generateResults)
	generateExtractCmd.Flags().StringVar(&generatePrompt, "prompt-template", "", "file holding the generation prompt ({entity} is replaced)")

	addEngineFlags(iterateCmd, &iterateEngine)
	addModelFlags(iterateCmd, &iterateModel)
	addResultFlags(iterateCmd, &iterateResults)
	iterateCmd.Flags().StringVar(&iteratePrompt, "prompt-template", "", "file holding the iteration prompt")
	iterateCmd.Flags().StringArrayVarP(&iterateSlots, "iteration-slot", "I", nil, "slot whose values are queued (repeatable)")
	iterateCmd.Flags().IntVarP(&iterateMax, "max-iterations", "M", spires.DefaultMaxIterations, "stop after this many iterations")
	iterateCmd.Flags().StringVarP(&iterateDB, "db", "D", "", "iteration state file (default: ~/.spires/iterations/<entity>.yaml)")
	iterateCmd.Flags().BoolVar(&iterateClear, "clear", false, "ignore existing iteration state")

	addEngineFlags(fillCmd, &fillEngine)
	addModelFlags(fillCmd, &fillModel)
	addResultFlags(fillCmd, &fillResults)
	fillCmd.Flags().StringVarP(&fillExamples, "examples", "E", "", "YAML file of example objects")

	rootCmd.AddCommand(extractCmd, generateExtractCmd, iterateCmd, fillCmd)
}
