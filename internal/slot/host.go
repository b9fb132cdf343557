package slot

import "fmt"

// Table is the fixed-size peripheral slot array. Its size is fixed at
// construction and never grows, matching spec.md §3's "bounded array"
// requirement for every daemon-wide table.
type Table struct {
	slots []Slot
	host  Host
}

// NewTable constructs a Table with the given fixed capacity.
func NewTable(capacity int, host Host) *Table {
	return &Table{slots: make([]Slot, capacity), host: host}
}

// Len returns the table's fixed capacity.
func (t *Table) Len() int { return len(t.slots) }

// Slot returns the slot at idx, or nil if idx is out of range.
func (t *Table) Slot(idx Index) *Slot {
	if idx < 0 || int(idx) >= len(t.slots) {
		return nil
	}
	return &t.slots[idx]
}

// Load finds the first Empty slot, claims it, and invokes the named
// plug-in's Initialize. On any failure the slot is rolled back to Empty
// and the error is returned; the slot is never left Claimed or exposed to
// commands in a half-initialized state.
//
// Per spec.md §9's Open Question resolution, loading an already-loaded
// plug-in name is not deduplicated: it consumes a second, independent
// slot.
func (t *Table) Load(pluginName string) (Index, error) {
	factory, ok := Lookup(pluginName)
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownPlugin, pluginName)
	}

	idx := -1
	for i := range t.slots {
		if t.slots[i].State == Empty {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, ErrSlotTableFull
	}

	t.slots[idx] = Slot{State: Claimed}
	s := &t.slots[idx]
	plugin := factory()
	if err := plugin.Initialize(s, t.host); err != nil {
		t.slots[idx] = Slot{} // roll back to Empty
		return -1, fmt.Errorf("slot: plugin %q failed to initialize: %w", pluginName, err)
	}
	if s.Name == "" || s.Resources == nil {
		t.slots[idx] = Slot{}
		return -1, fmt.Errorf("slot: plugin %q initialized without a name or resource table", pluginName)
	}
	// A Resource's zero value for PendingOwner is 0, a valid session ID;
	// every resource starts genuinely unheld, so normalize it here rather
	// than trust every plug-in's Initialize to remember the sentinel.
	for i := range s.Resources {
		s.Resources[i].PendingOwner = NoPendingOwner
	}
	s.Plugin = plugin
	s.State = Loaded
	return Index(idx), nil
}

// Resolve implements the digit-first-else-prefix-scan operand resolution
// rule from spec.md §4.4: an operand consisting only of ASCII digits is
// an index, otherwise it's a case-sensitive prefix match against loaded
// slot names, first match wins.
func (t *Table) Resolve(operand string) (Index, *Slot, error) {
	if isAllDigits(operand) {
		idx := atoiUnsafe(operand)
		s := t.Slot(Index(idx))
		if s == nil || s.State != Loaded {
			return -1, nil, ErrBadSlotIndex
		}
		return Index(idx), s, nil
	}
	for i := range t.slots {
		if t.slots[i].State == Loaded && hasPrefix(t.slots[i].Name, operand) {
			return Index(i), &t.slots[i], nil
		}
	}
	return -1, nil, ErrUnknownPluginName
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func atoiUnsafe(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// List renders the plain-text LIST body: one line per occupied slot,
// "<index> <name> : <description>", followed by one line per resource on
// that slot giving its name and capability tags, per spec.md §4.4's LIST
// row.
func (t *Table) List() []string {
	var lines []string
	for i := range t.slots {
		if t.slots[i].State != Loaded {
			continue
		}
		s := &t.slots[i]
		lines = append(lines, fmt.Sprintf("%d %s : %s", i, s.Name, s.Description))
		for j := range s.Resources {
			r := &s.Resources[j]
			lines = append(lines, fmt.Sprintf("%d %s %s", i, r.Name, r.Capabilities.String()))
		}
	}
	return lines
}
