package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBackboneElements(t *testing.T) {
	parent := map[string]any{"fhir_id": "p1"}

	t.Run("elements get a positional synthetic identity", func(t *testing.T) {
		tc, deleter := testContext()
		items := []any{
			map[string]any{"gender": "female"},
			map[string]any{"gender": "male"},
			map[string]any{"gender": "other"},
		}
		err := ProcessBackboneElements(context.Background(), tc, items, "HAS_CONTACT", "PatientContact", "Patient", parent,
			func(element map[string]any, identifying, props map[string]any) error {
				AppendProperties(element["gender"], "gender", props)
				return nil
			})
		require.NoError(t, err)

		// stale contacts are removed before the new ones are merged
		require.Len(t, deleter.calls, 1)
		assert.Equal(t, "Patient", deleter.calls[0].Node1Label)
		assert.Equal(t, "HAS_CONTACT", deleter.calls[0].RelType)
		assert.Equal(t, "PatientContact", deleter.calls[0].Node2Label)

		_, rels := tc.Batch.Drain()
		require.Len(t, rels, 3)
		assert.Equal(t, map[string]any{"temp_id": "p1_patientcontact1"}, rels[0].Node2Properties)
		assert.Equal(t, map[string]any{"temp_id": "p1_patientcontact2"}, rels[1].Node2Properties)
		assert.Equal(t, map[string]any{"temp_id": "p1_patientcontact3"}, rels[2].Node2Properties)
		assert.Equal(t, "female", rels[0].Node2ExtraProperties["gender"])
	})

	t.Run("fewer elements than before still start by deleting", func(t *testing.T) {
		tc, deleter := testContext()
		err := ProcessBackboneElements(context.Background(), tc, nil, "HAS_CONTACT", "PatientContact", "Patient", parent,
			func(element map[string]any, identifying, props map[string]any) error { return nil })
		require.NoError(t, err)

		assert.Len(t, deleter.calls, 1)
		nodes, rels := tc.Batch.Drain()
		assert.Empty(t, nodes)
		assert.Empty(t, rels)
	})

	t.Run("delete is skipped when the database was wiped this run", func(t *testing.T) {
		tc, deleter := testContext()
		tc.DatabaseDeleted = true
		err := ProcessBackboneElements(context.Background(), tc, []any{map[string]any{}}, "HAS_CONTACT", "PatientContact", "Patient", parent,
			func(element map[string]any, identifying, props map[string]any) error { return nil })
		require.NoError(t, err)
		assert.Empty(t, deleter.calls)
	})

	t.Run("synthetic parents chain their temp_id", func(t *testing.T) {
		tc, _ := testContext()
		tc.DatabaseDeleted = true
		nested := map[string]any{"temp_id": "p1_patientcontact1"}
		err := ProcessBackboneElements(context.Background(), tc, []any{map[string]any{}}, "HAS_DETAIL", "ContactDetail", "PatientContact", nested,
			func(element map[string]any, identifying, props map[string]any) error { return nil })
		require.NoError(t, err)

		_, rels := tc.Batch.Drain()
		require.Len(t, rels, 1)
		assert.Equal(t, "p1_patientcontact1_contactdetail1", rels[0].Node2Properties["temp_id"])
	})

	t.Run("missing parent id is an error", func(t *testing.T) {
		tc, _ := testContext()
		tc.DatabaseDeleted = true
		err := ProcessBackboneElements(context.Background(), tc, []any{map[string]any{}}, "HAS_CONTACT", "PatientContact", "Patient", map[string]any{},
			func(element map[string]any, identifying, props map[string]any) error { return nil })
		assert.Error(t, err)
	})

	t.Run("delete failure aborts", func(t *testing.T) {
		tc, deleter := testContext()
		deleter.err = errors.New("boom")
		err := ProcessBackboneElements(context.Background(), tc, []any{map[string]any{}}, "HAS_CONTACT", "PatientContact", "Patient", parent,
			func(element map[string]any, identifying, props map[string]any) error { return nil })
		assert.Error(t, err)
	})
}
