package connector

import (
	"context"
	"fmt"
	"time"

	"ContentCurator/internal/domain"
)

// Query carries all parameters required to execute a provider search.
type Query struct {
	Keywords []string
	From     time.Time
	To       time.Time
	Limit    int
}

// Connector captures a single source strategy (news API, listing scrape,
// etc.). EstimateRequests lets the budget ledger reserve capacity before
// any call is issued.
type Connector interface {
	Name() string
	EstimateRequests(q Query) int
	Search(ctx context.Context, q Query) ([]domain.Candidate, error)
}

// Registry keeps configured connectors in registration order, mapped by
// source name.
type Registry struct {
	connectors map[string]Connector
	order      []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(c Connector) {
	if r.connectors == nil {
		r.connectors = map[string]Connector{}
	}
	if _, ok := r.connectors[c.Name()]; !ok {
		r.order = append(r.order, c.Name())
	}
	r.connectors[c.Name()] = c
}

// Resolve returns a connector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Connector, error) {
	if c, ok := r.connectors[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("connector %s is not registered", name)
}

// All returns every registered connector in registration order.
func (r *Registry) All() []Connector {
	out := make([]Connector, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.connectors[name])
	}
	return out
}
