package model

import "github.com/Ramsey-B/fern/pkg/graph"

// codingIdentity are the property keys a coding node is identified by.
// Missing components are stored as the literal string "None" so the
// identity tuple is always complete; this sentinel is a persisted contract.
var codingIdentity = []string{"code", "system", "version"}

const missingComponent = "None"

// ProcessCodings stores each coding as its own node, identified by
// (code, system, version), with a relationship from the parent. A coding
// with neither code nor system carries no identity and is skipped with a
// warning.
func ProcessCodings(tc *Context, codings any, additionalLabel string, relType string, relProps map[string]any, parentLabel string, parentProps map[string]any) {
	for _, item := range asList(codings) {
		coding := asMap(item)
		if coding == nil {
			continue
		}
		if coding["code"] == nil && coding["system"] == nil {
			tc.Logger.Warn("Could not process Coding object: missing Coding.code and Coding.system")
			continue
		}

		props := map[string]any{}
		AppendProperties(coding["system"], "system", props)
		AppendProperties(coding["version"], "version", props)
		AppendProperties(coding["code"], "code", props)
		for _, k := range codingIdentity {
			if _, ok := props[k]; !ok {
				props[k] = missingComponent
			}
		}
		AppendProperties(coding["display"], "display", props)
		AppendProperties(coding["userSelected"], "user_selected", props)

		identifying := map[string]any{}
		for _, k := range codingIdentity {
			identifying[k] = props[k]
		}

		var additional []string
		if additionalLabel != "" {
			additional = []string{additionalLabel}
		}

		tc.Batch.AppendRelationshipMerge(graph.RelationshipMerge{
			Node1Label:            parentLabel,
			Node1Properties:       parentProps,
			Node2Label:            "Coding",
			Node2AdditionalLabels: additional,
			Node2Properties:       identifying,
			Node2ExtraProperties:  props,
			RelType:               relType,
			RelProperties:         relProps,
		})
	}
}

// ProcessCodeableConcepts stores each concept's codings as coding nodes and
// flattens the concepts' text onto the parent node under key.
func ProcessCodeableConcepts(tc *Context, ccs any, additionalLabel, key, relType string, relProps map[string]any, parentLabel string, parentProps map[string]any) {
	textProps := map[string]any{}

	for n, item := range asList(ccs) {
		cc := asMap(item)
		if cc == nil {
			continue
		}
		ProcessCodings(tc, cc["coding"], additionalLabel, relType, relProps, parentLabel, parentProps)
		AppendProperties(cc["text"], numberedKey(key, n), textProps)
	}

	if len(textProps) > 0 {
		tc.Batch.AppendNodeMerge([]string{parentLabel}, parentProps, mergedWith(parentProps, textProps))
	}
}
