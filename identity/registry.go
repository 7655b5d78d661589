// Package identity loads the named signing identities a deployment may act as.
package identity

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ledger-lists/domain"
)

// ErrUnknown is returned when no identity has the requested name.
var ErrUnknown = errors.New("unknown identity")

type file struct {
	Identities []domain.Identity `yaml:"identities"`
}

// Registry resolves identity names to credentials.
type Registry struct {
	byName map[string]domain.Identity
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identities: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML of the form
//
//	identities:
//	  - name: root
//	    authId: TfDao2xAPN1ewfoZY6BJS16NfwZ2QYJ2cF2
//	    privateKey: 6a5f41...
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identities: %w", err)
	}
	r := &Registry{byName: make(map[string]domain.Identity, len(f.Identities))}
	for i, id := range f.Identities {
		name := strings.TrimSpace(id.Name)
		if name == "" {
			return nil, fmt.Errorf("identity %d: name is required", i)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("identity %q defined twice", name)
		}
		id.Name = name
		r.byName[name] = id
	}
	return r, nil
}

// Lookup returns the identity called name.
func (r *Registry) Lookup(name string) (domain.Identity, error) {
	id, ok := r.byName[name]
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return id, nil
}

// Names lists the registered identity names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
