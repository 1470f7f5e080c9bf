package smartcode

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/erp/platform/internal/domain/shared"
)

// Validated is the result of a successful validation
type Validated struct {
	Code           Code     `json:"-"`
	SmartCode      string   `json:"smart_code"`
	NamespaceParts []string `json:"namespace_parts"`
	Version        int      `json:"version"`
	Prefix         string   `json:"prefix"`
}

type snapshot struct {
	templates map[string]Template
}

// Registry maps namespace prefixes to templates.
// Reads are lock-free against an immutable snapshot; writers publish a new snapshot.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a registry seeded with templates
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{}
	r.snap.Store(&snapshot{templates: map[string]Template{}})
	if err := r.RegisterAll(templates); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds or replaces a template
func (r *Registry) Register(t Template) error {
	return r.RegisterAll([]Template{t})
}

// RegisterHandler associates a namespace prefix with a handler using default hints
func (r *Registry) RegisterHandler(prefix string, handler Handler) error {
	return r.Register(Template{Prefix: prefix, Handler: handler})
}

// RegisterAll validates every template and publishes them in one snapshot
func (r *Registry) RegisterAll(templates []Template) error {
	normalized := make([]Template, 0, len(templates))
	for _, t := range templates {
		t = t.Normalize()
		if err := t.Validate(); err != nil {
			return err
		}
		normalized = append(normalized, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := make(map[string]Template, len(cur.templates)+len(normalized))
	for k, v := range cur.templates {
		next[k] = v
	}
	for _, t := range normalized {
		next[t.Prefix] = t
	}
	r.snap.Store(&snapshot{templates: next})
	return nil
}

// Lookup returns the template registered for exactly prefix
func (r *Registry) Lookup(prefix string) (Template, bool) {
	t, ok := r.snap.Load().templates[strings.ToUpper(prefix)]
	return t, ok
}

// Templates returns all templates ordered by prefix
func (r *Registry) Templates() []Template {
	snap := r.snap.Load()
	out := make([]Template, 0, len(snap.templates))
	for _, t := range snap.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Len returns the number of registered templates
func (r *Registry) Len() int {
	return len(r.snap.Load().templates)
}

// Validate parses code and resolves its longest registered prefix
func (r *Registry) Validate(code string) (Validated, error) {
	c, t, err := r.resolve(code)
	if err != nil {
		return Validated{}, err
	}
	parts := make([]string, len(c.Segments))
	copy(parts, c.Segments)
	return Validated{
		Code:           c,
		SmartCode:      c.String(),
		NamespaceParts: parts,
		Version:        c.Version,
		Prefix:         t.Prefix,
	}, nil
}

// Classify returns the downstream flags of a code. It performs no I/O.
func (r *Registry) Classify(code string) (Classification, error) {
	c, t, err := r.resolve(code)
	if err != nil {
		return Classification{}, err
	}
	return classify(c, t), nil
}

func (r *Registry) resolve(code string) (Code, Template, error) {
	c, err := Parse(code)
	if err != nil {
		return Code{}, Template{}, err
	}
	snap := r.snap.Load()
	for i := len(c.Segments); i > 0; i-- {
		prefix := strings.Join(c.Segments[:i], ".")
		t, ok := snap.templates[prefix]
		if !ok {
			continue
		}
		if t.LatestVersion > 0 && c.Version > t.LatestVersion {
			return Code{}, Template{}, unregisteredError(code, "version v"+strconv.Itoa(c.Version)+" is newer than the registered v"+strconv.Itoa(t.LatestVersion)+" of "+prefix)
		}
		return c, t, nil
	}
	return Code{}, Template{}, unregisteredError(code, "no template registered for namespace "+c.Namespace())
}

func unregisteredError(code, reason string) *shared.DomainError {
	return shared.NewValidationError(shared.CodeUnregisteredNS, "unregistered smart code: "+reason, shared.Violation{
		Rule:     "smart_code",
		Code:     shared.CodeUnregisteredNS,
		Field:    "smart_code",
		Message:  reason,
		Value:    code,
		Expected: "registered namespace",
	})
}
