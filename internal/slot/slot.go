package slot

import "errors"

// State is a Slot's lifecycle stage.
type State int

const (
	// Empty is the initial and "unloaded" state.
	Empty State = iota
	// Claimed marks a slot reserved for loading but not yet initialized;
	// it exists only for the duration of a single LOADSO call.
	Claimed
	// Loaded is a fully initialized, command-addressable slot.
	Loaded
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Claimed:
		return "claimed"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Index identifies a slot by its position in the fixed table.
type Index int

// Slot is one row of the fixed-size peripheral table. There is no Broken
// state: a load whose Initialize fails is rolled back to Empty before any
// command can observe it.
type Slot struct {
	State State

	Name        string
	Description string
	Help        string

	Plugin    Plugin
	Resources []Resource

	// Private is whatever state the plug-in wants to keep across calls;
	// opaque to the host.
	Private any
}

// ResourceByName performs the prefix-scan name resolution spec.md
// normalizes as "first match wins": every name, digit-first or not, is a
// case-sensitive prefix scan over Resources in table order.
func (s *Slot) ResourceByName(name string) (*Resource, bool) {
	_, r, ok := s.ResourceIndexByName(name)
	return r, ok
}

// ResourceIndexByName is ResourceByName plus the resource's position in
// the slot's table, needed to compute a CAT subscribe key.
func (s *Slot) ResourceIndexByName(name string) (int, *Resource, bool) {
	for i := range s.Resources {
		if hasPrefix(s.Resources[i].Name, name) {
			return i, &s.Resources[i], true
		}
	}
	return -1, nil, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// CompositeBroadcastKey computes the subscribe key CAT assigns, the
// `(slot_index<<16) | resource_index` packing spec.md §4.4 specifies.
func CompositeBroadcastKey(slotIndex Index, resourceIndex int) uint32 {
	return uint32(slotIndex)<<16 | uint32(resourceIndex)
}

// FindResourceByBroadcastKey scans every loaded slot for the resource
// currently holding key, so a Host.Broadcast call can pass it through to
// broadcast.Engine.Publish for key-reset bookkeeping. Returns nil if no
// resource currently holds key (including key == 0, which is never
// assigned).
func (t *Table) FindResourceByBroadcastKey(key uint32) *Resource {
	if key == 0 {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].State != Loaded {
			continue
		}
		for j := range t.slots[i].Resources {
			if t.slots[i].Resources[j].BroadcastKey == key {
				return &t.slots[i].Resources[j]
			}
		}
	}
	return nil
}

var (
	// ErrSlotTableFull is returned when no Empty slot remains for LOADSO.
	ErrSlotTableFull = errors.New("slot: table is full")
	// ErrUnknownPlugin is returned when LOADSO names a plug-in not present
	// in the compiled-in registry.
	ErrUnknownPlugin = errors.New("slot: unknown plug-in name")
	// ErrBadSlotIndex is returned when a numeric operand is out of range
	// or names a slot that is not Loaded.
	ErrBadSlotIndex = errors.New("slot: slot index out of range or not loaded")
	// ErrUnknownPluginName is returned when a non-numeric operand matches
	// no loaded slot's name by prefix. Named after the plug-in rather than
	// the slot since loaded slot names are always a plug-in's LOADSO name.
	ErrUnknownPluginName = errors.New("slot: no loaded slot name matches")
)
