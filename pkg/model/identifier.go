package model

import "github.com/Ramsey-B/fern/pkg/graph"

// identifierIdentity are the property keys an identifier node is identified
// by; a missing system becomes the "None" sentinel.
var identifierIdentity = []string{"value", "system"}

// ProcessIdentifiers stores each identifier as its own node, identified by
// (value, system), linked from the parent via relType. An identifier
// without a value is skipped with a warning. Identifier type codings and
// assigner references hang off the identifier node itself.
func ProcessIdentifiers(tc *Context, identifiers any, relType, parentLabel string, parentProps map[string]any) {
	for _, item := range asList(identifiers) {
		identifier := asMap(item)
		if identifier == nil {
			continue
		}
		if identifier["value"] == nil {
			tc.Logger.Warn("Could not process Identifier object: missing Identifier.value")
			continue
		}

		props := map[string]any{}
		AppendProperties(identifier["system"], "system", props)
		AppendProperties(identifier["value"], "value", props)
		for _, k := range identifierIdentity {
			if _, ok := props[k]; !ok {
				props[k] = missingComponent
			}
		}
		AppendProperties(identifier["use"], "use", props)

		identifying := map[string]any{}
		for _, k := range identifierIdentity {
			identifying[k] = props[k]
		}

		ProcessCodeableConcepts(tc, identifier["type"], "IdentifierType", "type", "HAS_TYPE", map[string]any{}, "Identifier", identifying)
		AppendPeriod(identifier["period"], "period", props)

		// the assigner is always an organization
		ProcessReferences(tc, identifier["assigner"], []string{"Organization"}, "assigner", "ASSIGNED_BY", "Identifier", identifying)

		tc.Batch.AppendRelationshipMerge(graph.RelationshipMerge{
			Node1Label:           parentLabel,
			Node1Properties:      parentProps,
			Node2Label:           "Identifier",
			Node2Properties:      identifying,
			Node2ExtraProperties: props,
			RelType:              relType,
			RelProperties:        map[string]any{},
		})
	}
}
