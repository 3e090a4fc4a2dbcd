package spires

import (
	"github.com/google/uuid"

	"github.com/jackzampolin/spires/internal/schema"
)

// autoAddIDs assigns <prefix>:<uuid> to every identifier slot of cls missing from raw.
func (e *Engine) autoAddIDs(raw RawResponse, cls *schema.Class) {
	if raw == nil {
		return
	}
	for _, slot := range e.schema.InducedSlots(cls) {
		if !slot.Identifier {
			continue
		}
		if _, ok := raw[slot.Name]; !ok {
			raw[slot.Name] = e.autoPrefix + ":" + uuid.NewString()
		}
	}
}
