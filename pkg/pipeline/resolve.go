package pipeline

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/model"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ResolverStore is the slice of the graph the resolver reads and rewrites.
type ResolverStore interface {
	MatchTriples(ctx context.Context, q graph.TripleQuery) ([]graph.Triple, error)
	MergeRelationship(ctx context.Context, m graph.RelationshipMerge) (graph.Summary, error)
	DeleteNodes(ctx context.Context, label string, properties map[string]any) (graph.Summary, error)
}

// Resolver replaces the placeholder nodes created for logical references
// with relationships to the real nodes, once those exist. References whose
// target has not been ingested yet stay pending and are picked up by a later
// run, resolving is idempotent.
type Resolver struct {
	store  ResolverStore
	logger ectologger.Logger
}

// NewResolver creates a resolver
func NewResolver(store ResolverStore, logger ectologger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// ResolveResult reports what one resolution pass did.
type ResolveResult struct {
	Resolved   int
	Unresolved int
}

// Resolve finds every pending reference, looks the real target up by the
// identifier recorded on the placeholder, rewires the relationship to it,
// and deletes the placeholder. Targets are found through their own
// IDENTIFIED_BY identifier nodes, so a reference only resolves after the
// referenced resource was ingested.
func (r *Resolver) Resolve(ctx context.Context) (ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Resolver.Resolve")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"trace_id": tracing.GetTraceID(ctx),
	})
	res := ResolveResult{}

	pending, err := r.store.MatchTriples(ctx, graph.TripleQuery{
		RelProperties: map[string]any{model.PendingMarker: true},
	})
	if err != nil {
		return res, fmt.Errorf("failed to find pending references: %w", err)
	}
	if len(pending) == 0 {
		log.Info("No pending references to resolve")
		return res, nil
	}

	for _, triple := range pending {
		refType, _ := triple.RelProperties[model.ReferenceTypeKey].(string)
		if refType != model.ReferenceTypeLogical {
			log.Warnf("Skipping pending reference of unknown kind %q", refType)
			res.Unresolved++
			continue
		}

		label := firstLabel(triple.Node2Labels)
		value := triple.Node2Properties[model.IdentifierValueKey]
		system := triple.Node2Properties[model.IdentifierSystemKey]

		targets, err := r.store.MatchTriples(ctx, graph.TripleQuery{
			Node1Label: label,
			RelType:    "IDENTIFIED_BY",
			Node2Label: "Identifier",
			Node2Properties: map[string]any{
				"value":  value,
				"system": system,
			},
		})
		if err != nil {
			return res, fmt.Errorf("failed to look up reference target: %w", err)
		}
		if len(targets) == 0 {
			log.Warnf("Could not resolve reference to a %s identified by %v|%v, leaving it pending", label, system, value)
			res.Unresolved++
			continue
		}

		relProps := map[string]any{}
		for k, v := range triple.RelProperties {
			if k == model.PendingMarker || k == model.ReferenceTypeKey {
				continue
			}
			relProps[k] = v
		}

		for _, target := range targets {
			if _, err := r.store.MergeRelationship(ctx, graph.RelationshipMerge{
				Node1Label:      firstLabel(triple.Node1Labels),
				Node1Properties: triple.Node1Properties,
				Node2Label:      label,
				Node2Properties: target.Node1Properties,
				RelType:         triple.RelType,
				RelProperties:   relProps,
			}); err != nil {
				return res, fmt.Errorf("failed to rewire reference: %w", err)
			}
		}

		// deleting by content collapses duplicate placeholders from
		// parallel loads in one go
		if _, err := r.store.DeleteNodes(ctx, label, triple.Node2Properties); err != nil {
			return res, fmt.Errorf("failed to delete placeholder: %w", err)
		}
		res.Resolved++
	}

	log.WithFields(map[string]any{
		"resolved":   res.Resolved,
		"unresolved": res.Unresolved,
	}).Info("Finished resolving references")
	return res, nil
}

func firstLabel(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
