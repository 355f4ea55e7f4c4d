package feedergate

import "sync"

// Registry tracks gate states across sensors. A gate's push loop writes,
// consumption filters read; the two sides run on different goroutines.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*gateState
}

type gateState struct {
	status   Status
	refilled bool
}

// NewRegistry creates an empty gate state registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*gateState)}
}

// Status returns the last reported state of a gate. Unknown gates report
// NoMessage.
func (r *Registry) Status(name string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.gates[name]; ok {
		return st.status
	}
	return NoMessage
}

// ConsumeRefill returns and clears the gate's refill flag. Unknown gates
// report false.
func (r *Registry) ConsumeRefill(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.gates[name]
	if !ok {
		return false
	}
	refilled := st.refilled
	st.refilled = false
	return refilled
}

// Gates returns the number of tracked gates.
func (r *Registry) Gates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gates)
}

// update applies one reported state. Only the Open to Closed edge marks a
// completed refill; manual operation never does.
func (r *Registry) update(name string, next Status) (refilled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.gates[name]
	if !ok {
		st = &gateState{}
		r.gates[name] = st
	}
	refilled = st.status == Open && next == Closed
	if refilled {
		st.refilled = true
	}
	st.status = next
	return refilled
}
