package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"maestro/internal/domain"
)

var (
	ErrUnknownProvider = errors.New("provider not found")
	ErrNoDefault       = errors.New("no default provider configured")
)

// Info describes a registered provider.
type Info struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Kind       Kind               `json:"kind"`
	Operations []domain.Operation `json:"operations"`
	Default    bool               `json:"default"`
}

// Registry holds the registered providers and their dispatch tables. The
// default may change at runtime; callers resolve it when they need it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	table     map[string]Capabilities
	defaultID string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		table:     make(map[string]Capabilities),
	}
}

// Register adds p and snapshots its capability table. Registering an id twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("providers: nil provider")
	}
	id := normalizeID(p.ID())
	if id == "" {
		return errors.New("providers: provider id is required")
	}
	caps := Capabilities{}
	for op, h := range p.Capabilities() {
		if h.Image == nil && h.Analyze == nil {
			continue
		}
		caps[op] = h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
	r.table[id] = caps
	return nil
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// SetDefault selects the provider used when a job does not name one.
func (r *Registry) SetDefault(id string) error {
	id = normalizeID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	r.defaultID = id
	return nil
}

func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return nil, ErrNoDefault
	}
	p, ok := r.providers[r.defaultID]
	if !ok {
		return nil, ErrNoDefault
	}
	return p, nil
}

// Resolve looks up the handler for op on the given provider. A miss is
// reported as domain.ErrProviderUnsupported.
func (r *Registry) Resolve(providerID string, op domain.Operation) (Handler, error) {
	id := normalizeID(providerID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return Handler{}, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	h, ok := r.table[id][op]
	if !ok {
		return Handler{}, Unsupported(p.Name(), op)
	}
	return h, nil
}

// List returns the registered providers ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.providers))
	for id, p := range r.providers {
		ops := make([]domain.Operation, 0, len(r.table[id]))
		for op := range r.table[id] {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
		out = append(out, Info{ID: id, Name: p.Name(), Kind: p.Kind(), Operations: ops, Default: id == r.defaultID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
