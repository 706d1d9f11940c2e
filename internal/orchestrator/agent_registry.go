package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/finsight/internal/agent"
	"github.com/ShayCichocki/finsight/pkg/models"
)

// ErrDuplicateSpecialist is returned when a name is registered twice.
var ErrDuplicateSpecialist = errors.New("duplicate specialist")

// Registry maps specialist names to the agents that answer for them.
// Names are matched exactly. Registration order is kept so the planning
// prompt lists specialists the same way every turn.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]agent.Specialist
	order  []string
}

// NewRegistry creates a registry holding the given specialists.
func NewRegistry(specialists ...agent.Specialist) (*Registry, error) {
	r := &Registry{byName: make(map[string]agent.Specialist, len(specialists))}
	for _, s := range specialists {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a specialist. It fails if the name is empty or taken.
func (r *Registry) Register(s agent.Specialist) error {
	if s == nil {
		return errors.New("specialist is nil")
	}
	name := s.Name()
	if strings.TrimSpace(name) == "" {
		return errors.New("specialist name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName == nil {
		r.byName = make(map[string]agent.Specialist)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSpecialist, name)
	}
	r.byName[name] = s
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the specialist registered under name.
func (r *Registry) Lookup(name string) (agent.Specialist, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Descriptors returns the routing identities in registration order.
func (r *Registry) Descriptors() []models.SpecialistDescriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SpecialistDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, agent.Describe(r.byName[name]))
	}
	return out
}

// Count returns the number of registered specialists.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
