package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/graph"
)

// ProcessBackboneElements handles sub-entities that carry no server-assigned
// id. Each element gets a synthetic positional identity derived from its
// parent: parent id + "_" + lowercased label + 1-based ordinal, stored as
// temp_id. Because that identity is positional, elements already attached to
// the parent are deleted first, unless the database was wiped this run and
// there is nothing stale to remove.
//
// For every element the callback fills element-specific fields into the
// child's identifying and property maps (and may append its own merges via
// tc.Batch); afterwards the parent-to-child relationship merge is appended
// carrying everything the callback added.
func ProcessBackboneElements(ctx context.Context, tc *Context, items any, relType, label, parentLabel string, parentProps map[string]any, fn func(element map[string]any, identifying, props map[string]any) error) error {
	if !tc.DatabaseDeleted {
		if _, err := tc.Deleter.DeleteAttachedNodes(ctx, graph.TripleQuery{
			Node1Label:      parentLabel,
			Node1Properties: parentProps,
			RelType:         relType,
			Node2Label:      label,
		}); err != nil {
			return fmt.Errorf("failed to delete stale %s nodes: %w", label, err)
		}
	}

	list := asList(items)
	if len(list) == 0 {
		return nil
	}

	parentID, ok := parentProps["fhir_id"]
	if !ok {
		parentID, ok = parentProps["temp_id"]
	}
	if !ok {
		return fmt.Errorf("could not process %s elements: parent id missing", label)
	}

	for n, item := range list {
		element := asMap(item)
		if element == nil {
			continue
		}

		tempID := fmt.Sprintf("%v_%s%d", parentID, strings.ToLower(label), n+1)
		props := map[string]any{"temp_id": tempID}
		identifying := map[string]any{"temp_id": tempID}

		if err := fn(element, identifying, props); err != nil {
			return err
		}

		tc.Batch.AppendRelationshipMerge(graph.RelationshipMerge{
			Node1Label:           parentLabel,
			Node1Properties:      parentProps,
			Node2Label:           label,
			Node2Properties:      identifying,
			Node2ExtraProperties: props,
			RelType:              relType,
			RelProperties:        map[string]any{},
		})
	}
	return nil
}
