package auth

import (
	"fmt"

	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Registry holds the configured auth modules in load order. It is
// built once at startup and immutable afterwards; every consumer gets
// it by reference.
type Registry struct {
	modules []Module
	listed  map[string]bool
	byName  map[string]Module
}

// NewRegistry registers modules in load order. listed names the subset
// offered on the selection screen; nil means all of them.
func NewRegistry(modules []Module, listed []string) (*Registry, error) {
	r := &Registry{
		modules: modules,
		listed:  map[string]bool{},
		byName:  map[string]Module{},
	}
	for _, m := range modules {
		if _, dup := r.byName[m.Name()]; dup {
			return nil, fmt.Errorf("auth: duplicate module name: %s", m.Name())
		}
		r.byName[m.Name()] = m
	}
	if listed == nil {
		for _, m := range modules {
			r.listed[m.Name()] = true
		}
	} else {
		for _, name := range listed {
			if _, ok := r.byName[name]; !ok {
				return nil, fmt.Errorf("auth: listed module not loaded: %s", name)
			}
			r.listed[name] = true
		}
	}
	return r, nil
}

// ByName returns the module or nil when unknown.
func (r *Registry) ByName(name string) Module {
	return r.byName[name]
}

// Modules returns all loaded modules in load order.
func (r *Registry) Modules() []Module {
	return r.modules
}

// Listed returns the selectable modules, filtered by the email auth
// domain constraint when one is present.
func (r *Registry) Listed(emailDomain string) []Module {
	var out []Module
	for _, m := range r.modules {
		if !r.listed[m.Name()] {
			continue
		}
		if emailDomain != "" && !m.AllowsEmailAuthDomain(emailDomain) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FirstLoggedIn returns the first backend in load order that reports
// being logged in for this request, or nil.
func (r *Registry) FirstLoggedIn(trc *transaction.Context) Module {
	for _, m := range r.modules {
		if m.LoggedIn(trc) {
			return m
		}
	}
	return nil
}
