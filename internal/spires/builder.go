package spires

import (
	"fmt"
	"sync"

	"github.com/jackzampolin/spires/internal/schema"
)

// BuilderFunc turns grounded fields into an object of cls.
type BuilderFunc func(s *schema.Schema, cls *schema.Class, fields *Object) (*Object, error)

// Builders maps class names to builders.
type Builders struct {
	mu       sync.RWMutex
	builders map[string]BuilderFunc
}

// NewBuilders creates an empty registry.
func NewBuilders() *Builders {
	return &Builders{builders: make(map[string]BuilderFunc)}
}

// Register sets the builder for a class, replacing any existing one.
func (b *Builders) Register(class string, fn BuilderFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builders[class] = fn
}

// RegisterSchema installs DefaultBuilder for every class of s that has no builder yet.
func (b *Builders) RegisterSchema(s *schema.Schema) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range s.Classes() {
		if _, ok := b.builders[c.Name]; !ok {
			b.builders[c.Name] = DefaultBuilder
		}
	}
}

// Lookup returns the builder for a class.
func (b *Builders) Lookup(class string) (BuilderFunc, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.builders[class]
	return fn, ok
}

// Build constructs an object through the class's builder.
func (b *Builders) Build(s *schema.Schema, cls *schema.Class, fields *Object) (*Object, error) {
	fn, ok := b.Lookup(cls.Name)
	if !ok {
		return nil, fmt.Errorf("no builder registered for class %s", cls.Name)
	}
	return fn(s, cls, fields)
}

// DefaultBuilder checks that every required slot is present.
func DefaultBuilder(s *schema.Schema, cls *schema.Class, fields *Object) (*Object, error) {
	for _, slot := range s.InducedSlots(cls) {
		if !slot.Required {
			continue
		}
		if v, ok := fields.Get(slot.Name); !ok || isEmptyValue(v) {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingRequired, cls.Name, slot.Name)
		}
	}
	fields.Class = cls.Name
	return fields, nil
}
