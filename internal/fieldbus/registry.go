package fieldbus

import "sync"

// HandleKind partitions the registry's id space.
type HandleKind int

const (
	KindDomain HandleKind = iota
	KindSlaveConfig
)

// HandleRegistry maps stable integer ids to opaque runtime handles so raw
// handles never leak to callers. Ids are assigned from 0 in creation order
// and never reused within a session; the cyclic path reads concurrently
// while the configuration path is the only writer.
type HandleRegistry struct {
	mu      sync.RWMutex
	next    map[HandleKind]int
	entries map[HandleKind]map[int]interface{}
	order   map[HandleKind][]int
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{
		next:    make(map[HandleKind]int),
		entries: make(map[HandleKind]map[int]interface{}),
		order:   make(map[HandleKind][]int),
	}
}

// Put stores a handle and returns its id.
func (r *HandleRegistry) Put(kind HandleKind, handle interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next[kind]
	r.next[kind] = id + 1

	if r.entries[kind] == nil {
		r.entries[kind] = make(map[int]interface{})
	}
	r.entries[kind][id] = handle
	r.order[kind] = append(r.order[kind], id)
	return id
}

func (r *HandleRegistry) Get(kind HandleKind, id int) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.entries[kind][id]
	return h, ok
}

func (r *HandleRegistry) Remove(kind HandleKind, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[kind][id]; !ok {
		return false
	}
	delete(r.entries[kind], id)
	for i, oid := range r.order[kind] {
		if oid == id {
			r.order[kind] = append(r.order[kind][:i], r.order[kind][i+1:]...)
			break
		}
	}
	return true
}

// IDs returns ids in creation order. Domains are processed in this order
// each cycle.
func (r *HandleRegistry) IDs(kind HandleKind) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, len(r.order[kind]))
	copy(ids, r.order[kind])
	return ids
}

func (r *HandleRegistry) Len(kind HandleKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[kind])
}

// Clear drops all handles of every kind. Id counters keep running so stale
// ids can never alias a new handle.
func (r *HandleRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[HandleKind]map[int]interface{})
	r.order = make(map[HandleKind][]int)
}
