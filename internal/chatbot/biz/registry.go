package biz

import (
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/pkg/errs"
)

// Domain is a named knowledge scope with its own system prompt. All
// retrieval and generation is scoped to exactly one active domain.
type Domain struct {
	// Name is the identifier, also used as the vector index filter value.
	Name string `json:"name"`
	// DisplayName is the human-readable name used in source labels.
	DisplayName string `json:"display_name"`
	// SystemPrompt instructs the completion model for this domain.
	SystemPrompt string `json:"system_prompt"`
	// Description is informational only.
	Description string `json:"description,omitempty"`
	// Active gates whether the domain accepts queries.
	Active bool `json:"active"`
}

const genericSystemPrompt = `You are a helpful documentation assistant. ` +
	`Answer questions using only the provided documentation context. ` +
	`Cite URLs that appear in the documentation. ` +
	`If the documentation does not cover the question, say so instead of guessing.`

// Registry holds the known documentation domains. Upload-time
// auto-provisioning and query-time lookups go through here so that the
// unknown-domain behavior is an explicit call, not ambient state.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*Domain
}

// NewRegistry creates a registry pre-populated with the given domains.
func NewRegistry(domains ...*Domain) *Registry {
	r := &Registry{
		domains: make(map[string]*Domain, len(domains)),
	}
	for _, d := range domains {
		r.domains[d.Name] = d
	}
	return r
}

// Get returns the named domain. Unknown and inactive domains both fail
// fast with a DomainError.
func (r *Registry) Get(name string) (*Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.domains[strings.ToLower(strings.TrimSpace(name))]
	if !ok || !d.Active {
		return nil, &errs.DomainError{Domain: name}
	}
	return d, nil
}

// Upsert registers or replaces a domain.
func (r *Registry) Upsert(d *Domain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[strings.ToLower(d.Name)] = d
}

// Ensure returns the named domain, auto-provisioning it with a generic
// system prompt when it does not exist yet. Used by the ingestion path,
// where referencing a new domain name creates it.
func (r *Registry) Ensure(name string) *Domain {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.domains[key]; ok {
		return d
	}

	d := &Domain{
		Name:         key,
		DisplayName:  capitalize(key),
		SystemPrompt: genericSystemPrompt,
		Active:       true,
	}
	r.domains[key] = d
	logger.Infow("auto-provisioned documentation domain", "domain", key)
	return d
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ListActive returns all active domains sorted by name.
func (r *Registry) ListActive() []*Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Domain, 0, len(r.domains))
	for _, d := range r.domains {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
