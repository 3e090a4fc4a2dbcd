package spires

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/spires/internal/ontology"
	spiresprompts "github.com/jackzampolin/spires/internal/prompts/spires"
)

// DefaultMaxIterations bounds IterativelyGenerateAndExtract.
const DefaultMaxIterations = 10

var (
	curiePattern        = regexp.MustCompile(`^[A-Z]+:[A-Z0-9]+$`)
	parentheticalRemove = regexp.MustCompile(`\(.*\)`)
)

// IterationState is the persisted work queue of the iterative loop.
type IterationState struct {
	ProcessedEntities []string            `yaml:"processed_entities"`
	EntitiesInQueue   []string            `yaml:"entities_in_queue"`
	Results           []*ExtractionResult `yaml:"results"`
}

// LoadIterationState reads the state file at path. A missing file yields an
// empty state.
func LoadIterationState(path string) (*IterationState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &IterationState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read iteration cache: %w", err)
	}
	var state IterationState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse iteration cache %s: %w", path, err)
	}
	return &state, nil
}

// Save overwrites the state file at path.
func (s *IterationState) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode iteration cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write iteration cache: %w", err)
	}
	return nil
}

// IterateOptions configures IterativelyGenerateAndExtract.
type IterateOptions struct {
	Entity    string
	CachePath string
	// IterationSlots name the slots whose values become follow-up entities.
	IterationSlots []string
	// Clear ignores an existing cache file.
	Clear         bool
	MaxIterations int
	// PromptTemplate overrides the "spires.iterate" prompt.
	PromptTemplate string
	// Labeler resolves CURIE-shaped entities; defaults to the engine's labeler.
	Labeler ontology.Labeler
	Extract ExtractOptions
}

// IterativelyGenerateAndExtract runs generate-and-extract over a growing queue
// of entities, starting from opts.Entity. emit receives each result as it is
// produced; a non-nil error from emit stops the loop. The state file is
// rewritten after every iteration.
func (e *Engine) IterativelyGenerateAndExtract(ctx context.Context, opts IterateOptions, emit func(*ExtractionResult) error) error {
	if opts.CachePath == "" {
		return errors.New("iteration cache path is required")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	labeler := opts.Labeler
	if labeler == nil {
		labeler = e.labeler
	}

	state := &IterationState{}
	if !opts.Clear {
		loaded, err := LoadIterationState(opts.CachePath)
		if err != nil {
			return err
		}
		state = loaded
	}
	if !slices.Contains(state.ProcessedEntities, opts.Entity) {
		state.EntitiesInQueue = append(state.EntitiesInQueue, opts.Entity)
	}

	slotList := strings.Join(opts.IterationSlots, " and ")
	for iteration := 1; len(state.EntitiesInQueue) > 0 && iteration <= opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := state.EntitiesInQueue[0]
		state.EntitiesInQueue = state.EntitiesInQueue[1:]
		e.logger.Info("iteration", "n", iteration, "entity", next)

		var curie string
		if curiePattern.MatchString(next) {
			curie = next
			if labeler != nil {
				label, err := labeler.Label(ctx, curie)
				switch {
				case err != nil:
					e.logger.Warn("failed to label entity", "curie", curie, "error", err)
				case label != "":
					next = label
				}
			}
		}

		prompt, err := e.renderGenerate(spiresprompts.IterateKey, opts.PromptTemplate,
			spiresprompts.GenerateData{Entity: next, Slots: slotList})
		if err != nil {
			return err
		}
		result, err := e.generateAndExtract(ctx, prompt, opts.Extract)
		if err != nil {
			return fmt.Errorf("iteration %d (%s): %w", iteration, next, err)
		}
		if curie != "" && result.ExtractedObject != nil {
			result.ExtractedObject.SetID(curie)
		}

		state.Results = append(state.Results, result)
		state.ProcessedEntities = append(state.ProcessedEntities, next)

		for _, slot := range opts.IterationSlots {
			vals := slotValues(result.ExtractedObject, slot)
			if len(vals) == 0 {
				e.logger.Info("dead-end: no values found for slot", "slot", slot, "entity", next)
				continue
			}
			for _, val := range vals {
				entity := e.followUpName(val, next, result.NamedEntities)
				if state.shouldEnqueue(entity) {
					state.EntitiesInQueue = append(state.EntitiesInQueue, entity)
				}
			}
		}

		if err := state.Save(opts.CachePath); err != nil {
			return err
		}
		if emit != nil {
			if err := emit(result); err != nil {
				return err
			}
		}
	}
	return nil
}

// followUpName resolves a slot value to the entity to enqueue. Values backed by a
// generated id are disambiguated with the entity they were found under.
func (e *Engine) followUpName(val, parent string, entities []NamedEntity) string {
	for _, ne := range entities {
		if ne.ID != val && ne.Label != val {
			continue
		}
		if strings.HasPrefix(ne.ID, e.autoPrefix+":") {
			return fmt.Sprintf("%s (%s)", ne.Label, removeParenthetical(parent))
		}
		return ne.ID
	}
	return val
}

func (s *IterationState) shouldEnqueue(entity string) bool {
	if entity == "" || slices.Contains(s.ProcessedEntities, entity) || slices.Contains(s.EntitiesInQueue, entity) {
		return false
	}
	bare := removeParenthetical(entity)
	seen := func(other string) bool { return removeParenthetical(other) == bare }
	return !slices.ContainsFunc(s.ProcessedEntities, seen) && !slices.ContainsFunc(s.EntitiesInQueue, seen)
}

func removeParenthetical(s string) string {
	return strings.TrimSpace(parentheticalRemove.ReplaceAllString(s, ""))
}

// slotValues returns the scalar values of a field as strings.
func slotValues(obj *Object, slot string) []string {
	v, ok := obj.Get(slot)
	if !ok {
		return nil
	}
	vals, _ := asList(v)
	var out []string
	for _, x := range vals {
		switch tx := x.(type) {
		case nil:
		case string:
			out = append(out, tx)
		case *Object:
			if id := tx.ID(); id != "" {
				out = append(out, id)
			} else if label := tx.GetString("label"); label != "" {
				out = append(out, label)
			}
		default:
			out = append(out, fmt.Sprint(tx))
		}
	}
	return out
}
