package spires

import (
	"strings"

	"github.com/jackzampolin/spires/internal/schema"
)

// FieldMatcher maps a field name emitted by the model onto a slot.
type FieldMatcher interface {
	Match(field string, slots []*schema.Slot) (*schema.Slot, bool)
}

// NormalizeField lower-cases a field name and replaces spaces with underscores.
func NormalizeField(field string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(field)), " ", "_")
}

// ExactMatcher matches normalized names only.
type ExactMatcher struct{}

// Match implements FieldMatcher.
func (ExactMatcher) Match(field string, slots []*schema.Slot) (*schema.Slot, bool) {
	return findSlot(NormalizeField(field), slots)
}

// DepluralizingMatcher matches normalized names, then retries with one trailing
// "s" removed. A slot whose real name ends in "s" still wins on the exact pass.
type DepluralizingMatcher struct{}

// Match implements FieldMatcher.
func (DepluralizingMatcher) Match(field string, slots []*schema.Slot) (*schema.Slot, bool) {
	name := NormalizeField(field)
	if slot, ok := findSlot(name, slots); ok {
		return slot, true
	}
	if trimmed, ok := strings.CutSuffix(name, "s"); ok {
		return findSlot(trimmed, slots)
	}
	return nil, false
}

func findSlot(name string, slots []*schema.Slot) (*schema.Slot, bool) {
	for _, s := range slots {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Splitter splits compound values of a small inlined class into Pairs.
type Splitter interface {
	Split(values []string) ([]Pair, bool)
}

// DefaultSeparators are tried in order by SeparatorSplitter.
var DefaultSeparators = []string{" - ", ":", "/", "*", "-"}

// SeparatorSplitter uses the first separator contained in every value and
// splits each value once on it.
type SeparatorSplitter struct {
	Separators []string
}

// Split implements Splitter.
func (s SeparatorSplitter) Split(values []string) ([]Pair, bool) {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	for _, sep := range seps {
		if !containsAll(values, sep) {
			continue
		}
		pairs := make([]Pair, 0, len(values))
		for _, v := range values {
			left, right, _ := strings.Cut(v, sep)
			pairs = append(pairs, Pair{strings.TrimSpace(left), strings.TrimSpace(right)})
		}
		return pairs, true
	}
	return nil, false
}

func containsAll(values []string, sep string) bool {
	for _, v := range values {
		if !strings.Contains(v, sep) {
			return false
		}
	}
	return true
}
