package core

// Registry maps a detected format to the processor that handles it and
// the operations that processor supports. It is populated once during
// pipeline construction and read-only afterwards, which is what makes
// concurrent Process calls safe without locking.
type Registry struct {
	entries map[Format]*registration
}

type registration struct {
	proc Processor
	ops  map[Operation]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Format]*registration)}
}

// Register adds a processor for every format it reports. Registering a
// second processor for the same format replaces the first.
func (r *Registry) Register(p Processor) {
	ops := make(map[Operation]bool, 4)
	for _, op := range p.Operations() {
		ops[op] = true
	}
	for _, f := range p.Formats() {
		r.entries[f] = &registration{proc: p, ops: ops}
	}
}

// Lookup returns the processor registered for the format.
func (r *Registry) Lookup(f Format) (Processor, bool) {
	e, ok := r.entries[f]
	if !ok {
		return nil, false
	}
	return e.proc, true
}

// Supports reports whether the format's processor implements the operation.
func (r *Registry) Supports(f Format, op Operation) bool {
	e, ok := r.entries[f]
	return ok && e.ops[op]
}

// Formats lists every registered format.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.entries))
	for f := range r.entries {
		out = append(out, f)
	}
	return out
}
