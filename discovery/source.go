package discovery

import (
	"sync"

	"github.com/servicelab/svc-acceptor/engine"
)

// Source is an explicit, in-memory module registration set. It replaces a
// convention-validated global registry: callers construct a Source, register
// their modules against it, and hand it to the discoverer. Registration
// order is preserved per service; ordering of execution is decided by the
// discoverer, not by registration order.
type Source struct {
	mu      sync.Mutex
	modules map[string][]Candidate
}

// NewSource creates an empty registration set.
func NewSource() *Source {
	return &Source{modules: make(map[string][]Candidate)}
}

// Register adds a module entry point under the given service. The name must
// carry the ordinal prefix ("01_create_user"); validation happens at
// discovery time so that a malformed registration surfaces as a
// DiscoveryError naming the module rather than a registration panic.
// Register returns the source for chaining.
func (s *Source) Register(service, name string, entry engine.ModuleFunc) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[service] = append(s.modules[service], Candidate{Name: name, Entry: entry})
	return s
}

// Modules implements ModuleSource.
func (s *Source) Modules(service string) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.modules[service]))
	copy(out, s.modules[service])
	return out, nil
}
