package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/cache"
	"github.com/jackzampolin/spires/internal/completion"
	"github.com/jackzampolin/spires/internal/config"
	"github.com/jackzampolin/spires/internal/home"
	"github.com/jackzampolin/spires/internal/llmcall"
	"github.com/jackzampolin/spires/internal/ontology"
	"github.com/jackzampolin/spires/internal/providers"
	"github.com/jackzampolin/spires/internal/schema"
	"github.com/jackzampolin/spires/internal/spires"
)

// app carries what every command resolves from flags and config.
type app struct {
	cfg     *config.Config
	home    *home.Dir
	logger  *slog.Logger
	closers []func()
}

func newApp() (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &app{cfg: mgr.Get(), home: h, logger: slog.Default()}, nil
}

// Close releases caches and audit sinks in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) openCache(ctx context.Context, path string) (cache.Store, error) {
	if path == "" {
		path = cacheDB
	}
	opts := a.cfg.CacheOptions(a.home.CachePath())
	if path != "" {
		opts.Backend = cache.BackendSQLite
		opts.Path = path
	}
	store, err := cache.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion cache: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close completion cache", "error", err)
		}
	})
	return store, nil
}

func (a *app) recorder(ctx context.Context) *llmcall.Recorder {
	sinks := []llmcall.Sink{llmcall.LogSink{Logger: a.logger, Level: slog.LevelDebug}}
	if dsn := config.ResolveEnvVars(a.cfg.Audit.PostgresURL); dsn != "" {
		sink, err := llmcall.NewPostgresSink(ctx, dsn)
		if err != nil {
			a.logger.Warn("call audit disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
			a.closers = append(a.closers, sink.Close)
		}
	}
	return llmcall.NewRecorder(a.logger, sinks...)
}

// modelFlags select the model and its generation settings.
type modelFlags struct {
	model       string
	provider    string
	showPrompt  bool
	maxGenLen   int
	temperature float64
	topP        float64
}

func addModelFlags(cmd *cobra.Command, f *modelFlags) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name (see list-models)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider from config (default: from model or config)")
	cmd.Flags().BoolVar(&f.showPrompt, "show-prompt", false, "log every prompt sent to the model")
	cmd.Flags().IntVar(&f.maxGenLen, "max-gen-len", completion.DefaultMaxGenLen, "maximum generated tokens")
	cmd.Flags().Float64Var(&f.temperature, "temperature", completion.DefaultTemperature, "sampling temperature")
	cmd.Flags().Float64Var(&f.topP, "top-p", completion.DefaultTopP, "nucleus sampling top p")
}

// completeOptions starts from config and applies the flags the user set.
func (a *app) completeOptions(cmd *cobra.Command, f *modelFlags) completion.CompleteOptions {
	opts := a.cfg.CompleteOptions()
	opts.ShowPrompt = f.showPrompt
	if cmd.Flags().Changed("max-gen-len") {
		opts.MaxGenLen = f.maxGenLen
	}
	if cmd.Flags().Changed("temperature") {
		opts.Temperature = f.temperature
	}
	if cmd.Flags().Changed("top-p") {
		opts.TopP = f.topP
	}
	return opts
}

// completionClient resolves provider and model, then wires cache and audit.
func (a *app) completionClient(ctx context.Context, f *modelFlags) (*completion.Client, error) {
	model := f.model
	if model == "" {
		model = a.cfg.Defaults.Model
	}
	provider := f.provider
	if info, ok := providers.LookupModel(model); ok {
		model = info.Name
		if provider == "" {
			provider = info.Provider
		}
	}
	if provider == "" {
		provider = a.cfg.Defaults.LLMProvider
	}

	reg := providers.NewRegistryFromConfig(a.cfg.ToProviderRegistryConfig())
	reg.SetLogger(a.logger)
	llm, err := reg.GetLLM(provider)
	if err != nil {
		return nil, fmt.Errorf("%w (is the provider enabled and its API key set?)", err)
	}

	store, err := a.openCache(ctx, "")
	if err != nil {
		return nil, err
	}
	return completion.New(completion.Config{
		LLM:      llm,
		Model:    model,
		Cache:    store,
		Recorder: a.recorder(ctx),
		Logger:   a.logger,
	})
}

// loadSchema finds a template in the home templates directory, then among
// the embedded templates and file paths.
func (a *app) loadSchema(template string) (*schema.Schema, error) {
	if template == "" {
		template = a.cfg.Defaults.Template
	}
	if template == "" {
		return nil, errors.New("no template given (use -t or set defaults.template)")
	}
	if p := a.home.TemplatePath(template); fileExists(p) {
		return schema.Load(p)
	}
	return schema.Load(template)
}

func (a *app) ontologyRegistry(dictionary string) (*ontology.Registry, error) {
	rc := a.cfg.OntologyConfig()
	rc.Skip = append(rc.Skip, skipAnnotators...)
	rc.Logger = a.logger
	if dictionary == "" {
		dictionary = a.cfg.Ontology.Dictionary
	}
	if dictionary != "" {
		d, err := ontology.LoadDictionary(dictionary)
		if err != nil {
			return nil, err
		}
		rc.Dictionary = d
	}
	return ontology.NewRegistry(rc)
}

// engineFlags are shared by every command that extracts.
type engineFlags struct {
	template           string
	dictionary         string
	autoPrefix         string
	recurse            bool
	sentencesPerWindow int
}

func addEngineFlags(cmd *cobra.Command, f *engineFlags) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "template name or path (default: defaults.template)")
	cmd.Flags().StringVar(&f.dictionary, "dictionary", "", "YAML dictionary of terms used for grounding")
	cmd.Flags().StringVar(&f.autoPrefix, "auto-prefix", "", "prefix of generated ids (default: defaults.auto_prefix)")
	cmd.Flags().BoolVar(&f.recurse, "recurse", true, "parse every inlined value with its own completion (--recurse=false splits two-slot values instead)")
	cmd.Flags().IntVar(&f.sentencesPerWindow, "sentences-per-window", 0, "extract from windows of this many sentences")
}

func (a *app) newEngine(cmd *cobra.Command, s *schema.Schema, c spires.Completer, ef *engineFlags, opts completion.CompleteOptions) (*spires.Engine, error) {
	reg, err := a.ontologyRegistry(ef.dictionary)
	if err != nil {
		return nil, err
	}

	cfg := spires.Config{
		Schema:             s,
		Completer:          c,
		Ontology:           reg,
		Labeler:            reg.Labeler(),
		AutoPrefix:         a.cfg.Defaults.AutoPrefix,
		Recurse:            a.cfg.Defaults.Recurse,
		SentencesPerWindow: a.cfg.Defaults.SentencesPerWindow,
		Completion:         opts,
		Logger:             a.logger,
	}
	if ef.autoPrefix != "" {
		cfg.AutoPrefix = ef.autoPrefix
	}
	if cmd.Flags().Changed("recurse") {
		cfg.Recurse = ef.recurse
	}
	if cmd.Flags().Changed("sentences-per-window") {
		cfg.SentencesPerWindow = ef.sentencesPerWindow
	}
	return spires.New(cfg)
}

// modelEngine builds a template engine backed by the configured model.
func (a *app) modelEngine(cmd *cobra.Command, ef *engineFlags, mf *modelFlags) (*spires.Engine, error) {
	s, err := a.loadSchema(ef.template)
	if err != nil {
		return nil, err
	}
	client, err := a.completionClient(cmd.Context(), mf)
	if err != nil {
		return nil, err
	}
	return a.newEngine(cmd, s, client, ef, a.completeOptions(cmd, mf))
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
