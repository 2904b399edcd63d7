package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessReferences(t *testing.T) {
	parent := map[string]any{"fhir_id": "p1"}

	t.Run("literal absolute url becomes a relationship", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "https://fhir.example.org/r4/Organization/o-123",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		require.Len(t, rels, 1)
		assert.Equal(t, "Patient", rels[0].Node1Label)
		assert.Equal(t, "Organization", rels[0].Node2Label)
		assert.Equal(t, map[string]any{"fhir_id": "o-123"}, rels[0].Node2Properties)
		assert.Equal(t, "MANAGED_BY", rels[0].RelType)
	})

	t.Run("literal relative url determines the type from the vocabulary", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "Practitioner/doc-1",
		}, []string{"Organization", "Practitioner", "PractitionerRole"}, "general_practitioner", "HAS_PRACTITIONER", "Patient", parent)

		_, rels := tc.Batch.Drain()
		require.Len(t, rels, 1)
		assert.Equal(t, "Practitioner", rels[0].Node2Label)
		assert.Equal(t, map[string]any{"fhir_id": "doc-1"}, rels[0].Node2Properties)
	})

	t.Run("determined type conflicting with the allowed types is dropped", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "Device/d1",
		}, []string{"Organization", "Practitioner"}, "general_practitioner", "HAS_PRACTITIONER", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Empty(t, rels)
	})

	t.Run("logical reference becomes a marked placeholder", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"identifier": map[string]any{
				"value":  "mrn-42",
				"system": "urn:oid:1.2.3",
			},
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		require.Len(t, rels, 1)
		assert.Equal(t, map[string]any{
			PendingMarker:       true,
			IdentifierValueKey:  "mrn-42",
			IdentifierSystemKey: "urn:oid:1.2.3",
		}, rels[0].Node2Properties)
		assert.Equal(t, map[string]any{
			PendingMarker:    true,
			ReferenceTypeKey: ReferenceTypeLogical,
		}, rels[0].RelProperties)
	})

	t.Run("logical reference without system is dropped", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"identifier": map[string]any{"value": "mrn-42"},
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Empty(t, rels)
	})

	t.Run("display only is flattened onto the parent", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"display": "General Hospital",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, rels)
		require.Len(t, nodes, 1)
		assert.Equal(t, []string{"Patient"}, nodes[0].Labels)
		assert.Equal(t, parent, nodes[0].IdentifyingProperties)
		assert.Equal(t, "General Hospital", nodes[0].Properties["managed_by"])
	})

	t.Run("literal wins over display, exactly one outcome", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "Organization/o1",
			"display":   "General Hospital",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Len(t, rels, 1)
	})

	t.Run("unparseable url falls back to display", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "urn:uuid:not-a-resource-path",
			"display":   "General Hospital",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, rels)
		require.Len(t, nodes, 1)
		assert.Equal(t, "General Hospital", nodes[0].Properties["managed_by"])
	})

	t.Run("unparseable url falls back to a logical identifier", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "urn:uuid:not-a-resource-path",
			"identifier": map[string]any{
				"value":  "org-42",
				"system": "urn:oid:1.2.3",
			},
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		require.Len(t, rels, 1)
		assert.Equal(t, true, rels[0].Node2Properties[PendingMarker])
	})

	t.Run("incomplete logical identifier falls back to display", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"identifier": map[string]any{"value": "org-42"},
			"display":    "General Hospital",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, rels)
		require.Len(t, nodes, 1)
		assert.Equal(t, "General Hospital", nodes[0].Properties["managed_by"])
	})

	t.Run("url without an extractable id is dropped", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{
			"reference": "urn:uuid:not-a-resource-path",
		}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Empty(t, rels)
	})

	t.Run("reference with none of url, identifier, display is dropped", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, map[string]any{"type": "Organization"}, []string{"Organization"}, "managed_by", "MANAGED_BY", "Patient", parent)

		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Empty(t, rels)
	})

	t.Run("repeated references number the display key", func(t *testing.T) {
		tc, _ := testContext()
		ProcessReferences(tc, []any{
			map[string]any{"display": "Dr. One"},
			map[string]any{"display": "Dr. Two"},
		}, []string{"Practitioner"}, "general_practitioner", "HAS_PRACTITIONER", "Patient", parent)

		nodes, _ := tc.Batch.Drain()
		require.Len(t, nodes, 2)
		assert.Equal(t, "Dr. One", nodes[0].Properties["general_practitioner"])
		assert.Equal(t, "Dr. Two", nodes[1].Properties["general_practitioner2"])
	})
}

func TestReferencePattern(t *testing.T) {
	cases := map[string]struct {
		url      string
		wantType string
		wantID   string
	}{
		"relative":            {"Observation/1x2", "Observation", "1x2"},
		"absolute":            {"http://example.org/fhir/Patient/p.1-a", "Patient", "p.1-a"},
		"https with port":     {"https://host:8443/base/Organization/o1", "Organization", "o1"},
		"versioned":           {"Patient/p1/_history/2", "Patient", "p1"},
		"longer name matches": {"MedicationAdministration/m1", "MedicationAdministration", "m1"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			m := referencePattern.FindStringSubmatch(c.url)
			require.NotNil(t, m)
			assert.Equal(t, c.wantType, m[1])
			assert.Equal(t, c.wantID, m[2])
		})
	}

	assert.Nil(t, referencePattern.FindStringSubmatch("urn:uuid:1234"))
}
