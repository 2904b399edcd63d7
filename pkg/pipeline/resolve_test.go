package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/model"
)

type fakeResolverStore struct {
	pending []graph.Triple
	targets map[string][]graph.Triple

	merged  []graph.RelationshipMerge
	deleted []struct {
		label string
		props map[string]any
	}
}

func (s *fakeResolverStore) MatchTriples(_ context.Context, q graph.TripleQuery) ([]graph.Triple, error) {
	if q.RelProperties[model.PendingMarker] == true {
		pending := s.pending
		return pending, nil
	}
	value, _ := q.Node2Properties["value"].(string)
	return s.targets[q.Node1Label+"|"+value], nil
}

func (s *fakeResolverStore) MergeRelationship(_ context.Context, m graph.RelationshipMerge) (graph.Summary, error) {
	s.merged = append(s.merged, m)
	return graph.Summary{RelationshipsCreated: 1}, nil
}

func (s *fakeResolverStore) DeleteNodes(_ context.Context, label string, props map[string]any) (graph.Summary, error) {
	s.deleted = append(s.deleted, struct {
		label string
		props map[string]any
	}{label, props})
	// the placeholder is gone now
	s.pending = nil
	return graph.Summary{NodesDeleted: 1}, nil
}

func pendingTriple(value, system string) graph.Triple {
	return graph.Triple{
		Node1Labels:     []string{"Patient"},
		Node1Properties: map[string]any{"fhir_id": "p1"},
		RelType:         "MANAGED_BY",
		RelProperties: map[string]any{
			model.PendingMarker:    true,
			model.ReferenceTypeKey: model.ReferenceTypeLogical,
		},
		Node2Labels: []string{"Organization"},
		Node2Properties: map[string]any{
			model.PendingMarker:       true,
			model.IdentifierValueKey:  value,
			model.IdentifierSystemKey: system,
		},
	}
}

func TestResolverResolve(t *testing.T) {
	store := &fakeResolverStore{
		pending: []graph.Triple{pendingTriple("org-42", "urn:oid:1.2.3")},
		targets: map[string][]graph.Triple{
			"Organization|org-42": {{
				Node1Labels:     []string{"Organization"},
				Node1Properties: map[string]any{"fhir_id": "o1", "name": "General Hospital"},
				RelType:         "IDENTIFIED_BY",
				Node2Labels:     []string{"Identifier"},
				Node2Properties: map[string]any{"value": "org-42", "system": "urn:oid:1.2.3"},
			}},
		},
	}

	r := NewResolver(store, testLogger())
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 0, res.Unresolved)

	// the relationship was rewired to the real node without the markers
	require.Len(t, store.merged, 1)
	m := store.merged[0]
	assert.Equal(t, "Patient", m.Node1Label)
	assert.Equal(t, map[string]any{"fhir_id": "p1"}, m.Node1Properties)
	assert.Equal(t, "Organization", m.Node2Label)
	assert.Equal(t, map[string]any{"fhir_id": "o1", "name": "General Hospital"}, m.Node2Properties)
	assert.Equal(t, "MANAGED_BY", m.RelType)
	assert.Empty(t, m.RelProperties)

	// the placeholder was deleted by its full content
	require.Len(t, store.deleted, 1)
	assert.Equal(t, "Organization", store.deleted[0].label)
	assert.Equal(t, true, store.deleted[0].props[model.PendingMarker])

	// a second pass finds nothing left to do
	res, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Resolved)
	assert.Len(t, store.merged, 1)
}

func TestResolverLeavesUnresolvable(t *testing.T) {
	store := &fakeResolverStore{
		pending: []graph.Triple{pendingTriple("org-42", "urn:oid:1.2.3")},
	}

	r := NewResolver(store, testLogger())
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, 1, res.Unresolved)
	assert.Empty(t, store.merged)
	assert.Empty(t, store.deleted)
}

func TestResolverSkipsUnknownKinds(t *testing.T) {
	triple := pendingTriple("org-42", "urn:oid:1.2.3")
	triple.RelProperties[model.ReferenceTypeKey] = "conditional"
	store := &fakeResolverStore{pending: []graph.Triple{triple}}

	r := NewResolver(store, testLogger())
	res, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Unresolved)
	assert.Empty(t, store.merged)
}

func TestResolverKeepsCustomRelProperties(t *testing.T) {
	triple := pendingTriple("org-42", "urn:oid:1.2.3")
	triple.RelProperties["preferred"] = true
	store := &fakeResolverStore{
		pending: []graph.Triple{triple},
		targets: map[string][]graph.Triple{
			"Organization|org-42": {{
				Node1Properties: map[string]any{"fhir_id": "o1"},
			}},
		},
	}

	r := NewResolver(store, testLogger())
	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, store.merged, 1)
	assert.Equal(t, map[string]any{"preferred": true}, store.merged[0].RelProperties)
}
