package server

import "sync"

// ModifiedHandler is invoked whenever a registered Server is mutated.
type ModifiedHandler func(connectionName string)

// Registry holds the ordered list of configured Servers and resolves
// lookups, including through proxy chains (spec.md §4.1).
type Registry struct {
	mu        sync.RWMutex
	servers   []*Server
	onModify  []ModifiedHandler
}

// NewRegistry creates an empty server registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnModified registers a callback fired by Modify.
func (r *Registry) OnModified(h ModifiedHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onModify = append(r.onModify, h)
}

// Add appends a Server to the registry. The core does not check for
// duplicate connection names; callers must not register duplicates
// (spec.md §9 Open Questions — behavior on duplicates is otherwise
// unspecified, so Add only guarantees it will not panic or corrupt state).
func (r *Registry) Add(s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, s)
}

// RemoveByName removes the first top-level Server with the given name.
func (r *Registry) RemoveByName(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.servers {
		if s.ConnectionName == name {
			r.servers = append(r.servers[:i], r.servers[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveNth removes the Server at index i. Returns false if out of range.
func (r *Registry) RemoveNth(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.servers) {
		return false
	}
	r.servers = append(r.servers[:i], r.servers[i+1:]...)
	return true
}

// RemoveAll clears the registry.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = nil
}

// All returns a snapshot of every top-level registered Server, in
// registration order.
func (r *Registry) All() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Server(nil), r.servers...)
}

// Nth returns the Server at index i, or nil if out of range. Never errors.
func (r *Registry) Nth(i int) *Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.servers) {
		return nil
	}
	return r.servers[i]
}

// ByName looks up a Server by connection name. If no top-level Server
// matches, each top-level Server's proxy is consulted by its own name
// (spec.md §4.1).
func (r *Registry) ByName(name string) *Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if s.ConnectionName == name {
			return s
		}
	}
	for _, s := range r.servers {
		if s.Proxy != nil && s.Proxy.ConnectionName == name {
			return s.Proxy
		}
	}
	return nil
}

// Count returns the total number of top-level registered Servers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// CountQueryRetrieveEnabled returns the number of top-level Servers with
// QueryRetrieveEnabled set.
func (r *Registry) CountQueryRetrieveEnabled() int {
	return r.countWhere(func(s *Server) bool { return s.QueryRetrieveEnabled })
}

// CountStorageEnabled returns the number of top-level Servers with
// StorageEnabled set.
func (r *Registry) CountStorageEnabled() int {
	return r.countWhere(func(s *Server) bool { return s.StorageEnabled })
}

func (r *Registry) countWhere(pred func(*Server) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.servers {
		if pred(s) {
			n++
		}
	}
	return n
}

// QueryRetrieveEnabled returns a snapshot of every top-level Server with
// QueryRetrieveEnabled set, in registration order. The scheduler does not
// call it: each of its entry points addresses one named connection.
func (r *Registry) QueryRetrieveEnabled() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Server, 0, len(r.servers))
	for _, s := range r.servers {
		if s.QueryRetrieveEnabled {
			out = append(out, s)
		}
	}
	return out
}

// Modify mutates a registered Server in place under the registry lock and
// fires server_modified(connection_name) to subscribers.
func (r *Registry) Modify(name string, mutate func(*Server)) bool {
	r.mu.Lock()
	var target *Server
	for _, s := range r.servers {
		if s.ConnectionName == name {
			target = s
			break
		}
	}
	if target == nil {
		r.mu.Unlock()
		return false
	}
	mutate(target)
	handlers := append([]ModifiedHandler(nil), r.onModify...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(name)
	}
	return true
}
