// Package model transforms FHIR resources into graph merge requests. Each
// resource type has a Model that knows its fields; the shared functions in
// this package handle the datatypes that appear across all resource types
// (identifiers, codings, references, backbone elements, and the flattened
// primitives).
package model

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/fhir"
	"github.com/Ramsey-B/fern/pkg/graph"
)

// ConstraintCreator is the slice of the graph store models need to set up
// their uniqueness constraints.
type ConstraintCreator interface {
	CreateUnique(ctx context.Context, label string, properties ...string) (int, error)
}

// AttachedNodeDeleter is the slice of the graph store backbone element
// processing needs to drop a parent's stale sub-entity nodes.
type AttachedNodeDeleter interface {
	DeleteAttachedNodes(ctx context.Context, q graph.TripleQuery) (graph.Summary, error)
}

// Model transforms one FHIR resource type into merge requests.
type Model interface {
	// ResourceType returns the FHIR resource type this model handles.
	ResourceType() string

	// Initialize creates the uniqueness constraints for every label the
	// model can produce, including referenced types, coding nodes, and
	// sub-entity nodes. Returns how many constraints were actually added.
	Initialize(ctx context.Context, constraints ConstraintCreator) (int, error)

	// Transform reads the resource and appends merge requests to the
	// batch carried by tc.
	Transform(ctx context.Context, res *fhir.Resource, tc *Context) error
}

// Context carries per-run state through a transform.
type Context struct {
	Batch *Batch

	// DatabaseDeleted is true when the database was wiped at the start of
	// this run. Sub-entity delete-before-recreate is skipped then, there
	// is nothing stale to remove.
	DatabaseDeleted bool

	Deleter AttachedNodeDeleter
	Logger  ectologger.Logger
}

// Registry maps resource type names to models, resolved once at startup.
type Registry struct {
	models map[string]Model
}

// NewRegistry creates a registry with the given models
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

// Register adds a model, replacing any previous model for the same type.
func (r *Registry) Register(m Model) {
	r.models[m.ResourceType()] = m
}

// Get returns the model for a resource type.
func (r *Registry) Get(resourceType string) (Model, error) {
	m, ok := r.models[resourceType]
	if !ok {
		return nil, fmt.Errorf("no model for resource type %q", resourceType)
	}
	return m, nil
}

// Types returns the registered resource type names.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.models))
	for t := range r.models {
		types = append(types, t)
	}
	return types
}
