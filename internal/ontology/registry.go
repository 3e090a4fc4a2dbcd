package ontology

import (
	"log/slog"
	"strings"
	"sync"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// OLS is the template for OLS clients; Ontology is filled per annotator spec.
	OLS OLSConfig
	// Dictionary, when set, answers every class's lookups before remote services.
	Dictionary *Dictionary
	// Skip lists annotator specs to ignore, matched by prefix.
	Skip []string
	// Offline disables remote annotators and labelers.
	Offline bool
	// LabelCacheSize sizes the LRU in front of the remote labeler.
	LabelCacheSize int
	Logger         *slog.Logger
}

// Registry resolves annotator specs declared on template classes
// (e.g. "sqlite:obo:hp", "ols:go") to Annotators and owns the shared Labeler.
type Registry struct {
	mu         sync.RWMutex
	cfg        RegistryConfig
	annotators map[string]Annotator
	labelers   Chain
	logger     *slog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:        cfg,
		annotators: make(map[string]Annotator),
		logger:     logger,
	}

	if cfg.Dictionary != nil {
		r.labelers = append(r.labelers, cfg.Dictionary)
	}
	if !cfg.Offline {
		olsCfg := cfg.OLS
		olsCfg.Logger = logger
		cached, err := NewCachedLabeler(NewOLSClient(olsCfg), cfg.LabelCacheSize)
		if err != nil {
			return nil, err
		}
		r.labelers = append(r.labelers, cached)
	}
	return r, nil
}

// Labeler returns the labeler chain.
func (r *Registry) Labeler() Labeler {
	return r.labelers
}

// Register binds an annotator to a spec, overriding built-in resolution.
func (r *Registry) Register(spec string, a Annotator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotators[spec] = a
}

// Annotators resolves the given specs in order. Skipped and unsupported specs
// are left out; the dictionary, if any, always comes first.
func (r *Registry) Annotators(specs []string) []Annotator {
	var out []Annotator
	if r.cfg.Dictionary != nil {
		out = append(out, r.cfg.Dictionary)
	}
	for _, spec := range specs {
		if r.skipped(spec) {
			r.logger.Debug("skipping annotator", "spec", spec)
			continue
		}
		if a := r.resolve(spec); a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) skipped(spec string) bool {
	for _, s := range r.cfg.Skip {
		if s != "" && strings.HasPrefix(spec, s) {
			return true
		}
	}
	return false
}

func (r *Registry) resolve(spec string) Annotator {
	r.mu.RLock()
	a, ok := r.annotators[spec]
	r.mu.RUnlock()
	if ok {
		return a
	}

	ont, ok := olsOntology(spec)
	if !ok {
		r.logger.Warn("unsupported annotator", "spec", spec)
		return nil
	}
	if r.cfg.Offline {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.annotators[spec]; ok {
		return a
	}
	cfg := r.cfg.OLS
	cfg.Ontology = ont
	cfg.Logger = r.logger
	client := NewOLSClient(cfg)
	r.annotators[spec] = client
	return client
}

// olsOntology maps an annotator spec onto an OLS ontology id.
// "sqlite:obo:hp" and "ols:hp" both select hp.
func olsOntology(spec string) (string, bool) {
	switch {
	case strings.HasPrefix(spec, "sqlite:obo:"):
		return strings.TrimPrefix(spec, "sqlite:obo:"), true
	case strings.HasPrefix(spec, "ols:"):
		return strings.TrimPrefix(spec, "ols:"), true
	default:
		return "", false
	}
}
