package skills

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps names to skills. It is built once at startup and only read
// while requests are served.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

func (r *Registry) Register(s Skill) error {
	name := strings.TrimSpace(s.Definition().Name)
	if name == "" {
		return fmt.Errorf("register skill: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}
	r.skills[name] = s
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics on error; for wiring code only.
func (r *Registry) MustRegister(skills ...Skill) {
	for _, s := range skills {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns skill names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.skills[name].Definition())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
