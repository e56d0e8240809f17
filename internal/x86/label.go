package x86

// Label is an opaque handle into a Labels table. Handles are only issued by
// Labels.Add; the zero Label refers to no label at all and is what a Memory
// without a label carries.
type Label struct {
	id int // index + 1
}

// Valid reports whether l was issued by some Labels table.
func (l Label) Valid() bool {
	return l.id > 0
}

// Operand implements Arg.
func (l Label) Operand() Operand {
	return Operand{Kind: OpLabel, Label: l}
}

// Labels is an append-only table of label display names. Insertion order is
// handle order. Handles from one table are meaningless on another.
type Labels struct {
	names []string
}

// Add appends name and returns a fresh handle for it. Names are not
// deduplicated.
func (t *Labels) Add(name string) Label {
	t.names = append(t.names, name)
	return Label{id: len(t.names)}
}

// Name resolves a handle to its display name. Unknown handles are a
// contract violation.
func (t *Labels) Name(l Label) string {
	if l.id <= 0 || l.id > len(t.names) {
		Violate("Labels.Name", "label handle %d out of range (table has %d labels)", l.id-1, len(t.names))
	}
	return t.names[l.id-1]
}

// Len returns the number of labels issued so far.
func (t *Labels) Len() int {
	return len(t.names)
}
