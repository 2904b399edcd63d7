package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// NodeMerge describes an idempotent node upsert. The node is matched (or
// created) on IdentifyingProperties only; Properties are applied afterwards
// with SET +=, so re-merging the same node converges.
type NodeMerge struct {
	Labels                []string
	IdentifyingProperties map[string]any
	Properties            map[string]any
}

// RelationshipMerge describes an idempotent relationship upsert. Both
// endpoint nodes are merged on their identifying properties, then the
// relationship is merged between them. Node2AdditionalLabels and
// Node2ExtraProperties are applied to the target node, which lets a single
// merge attach e.g. a display label or placeholder metadata to the far side.
type RelationshipMerge struct {
	Node1Label            string
	Node1Properties       map[string]any
	Node2Label            string
	Node2AdditionalLabels []string
	Node2Properties       map[string]any
	Node2ExtraProperties  map[string]any
	RelType               string
	RelProperties         map[string]any
}

// Summary aggregates write counters from a statement.
type Summary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	ConstraintsAdded     int
	ConstraintsRemoved   int
}

// Add accumulates counters from another summary.
func (s *Summary) Add(other Summary) {
	s.NodesCreated += other.NodesCreated
	s.NodesDeleted += other.NodesDeleted
	s.RelationshipsCreated += other.RelationshipsCreated
	s.RelationshipsDeleted += other.RelationshipsDeleted
	s.PropertiesSet += other.PropertiesSet
	s.ConstraintsAdded += other.ConstraintsAdded
	s.ConstraintsRemoved += other.ConstraintsRemoved
}

// Labels, relationship types and property keys inside the items are data, so
// the statements lean on apoc.merge.* instead of string-built Cypher.
const mergeNodesCypher = `
UNWIND $items AS item
CALL apoc.merge.node(item.labels, item.identifying_properties) YIELD node AS n
SET n += item.properties
`

const mergeRelationshipsCypher = `
UNWIND $items AS item
CALL apoc.merge.node([item.n1_label], item.n1_properties) YIELD node AS n1
CALL apoc.merge.node([item.n2_label], item.n2_properties) YIELD node AS n2
CALL apoc.create.addLabels(n2, item.n2_additional_labels) YIELD node AS n2a
CALL apoc.merge.relationship(n1, item.rel_type, {}, {}, n2a) YIELD rel AS r
SET r += item.rel_properties
SET n2a += item.n2_extra_properties
`

// MergeService handles idempotent batch writes to the graph
type MergeService struct {
	client *Client
	logger ectologger.Logger
	retry  retryPolicy
}

// NewMergeService creates a new merge service
func NewMergeService(client *Client, logger ectologger.Logger, maxRetries int, retryDelay time.Duration) *MergeService {
	return &MergeService{
		client: client,
		logger: logger,
		retry:  newRetryPolicy(maxRetries, retryDelay),
	}
}

// MergeNodes upserts a batch of nodes in a single write transaction.
func (s *MergeService) MergeNodes(ctx context.Context, merges []NodeMerge) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.MergeService.MergeNodes")
	defer span.End()

	if len(merges) == 0 {
		return Summary{}, nil
	}

	items := make([]any, len(merges))
	for i, m := range merges {
		items[i] = map[string]any{
			"labels":                 m.Labels,
			"identifying_properties": orEmpty(m.IdentifyingProperties),
			"properties":             orEmpty(m.Properties),
		}
	}

	summary, err := s.write(ctx, mergeNodesCypher, map[string]any{"items": items})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to merge batch of %d nodes", len(merges))
		return Summary{}, fmt.Errorf("failed to merge nodes: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size":    len(merges),
		"nodes_created": summary.NodesCreated,
	}).Debug("Merged node batch")
	return summary, nil
}

// MergeRelationships upserts a batch of relationships in a single write
// transaction, merging both endpoint nodes on their identifying properties.
func (s *MergeService) MergeRelationships(ctx context.Context, merges []RelationshipMerge) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.MergeService.MergeRelationships")
	defer span.End()

	if len(merges) == 0 {
		return Summary{}, nil
	}

	items := make([]any, len(merges))
	for i, m := range merges {
		items[i] = map[string]any{
			"n1_label":             m.Node1Label,
			"n1_properties":        orEmpty(m.Node1Properties),
			"n2_label":             m.Node2Label,
			"n2_additional_labels": orEmptyList(m.Node2AdditionalLabels),
			"n2_properties":        orEmpty(m.Node2Properties),
			"n2_extra_properties":  orEmpty(m.Node2ExtraProperties),
			"rel_type":             m.RelType,
			"rel_properties":       orEmpty(m.RelProperties),
		}
	}

	summary, err := s.write(ctx, mergeRelationshipsCypher, map[string]any{"items": items})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to merge batch of %d relationships", len(merges))
		return Summary{}, fmt.Errorf("failed to merge relationships: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size":            len(merges),
		"relationships_created": summary.RelationshipsCreated,
	}).Debug("Merged relationship batch")
	return summary, nil
}

// MergeRelationship upserts a single relationship between two existing
// nodes. Unlike the batch variant it does not create endpoints, so it is
// suitable for wiring up nodes that are known to exist already.
func (s *MergeService) MergeRelationship(ctx context.Context, m RelationshipMerge) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.MergeService.MergeRelationship")
	defer span.End()

	params := map[string]any{}
	cypher := fmt.Sprintf(`
MATCH %s
MATCH %s
MERGE (n1)-[r:%s]->(n2)
SET r += $rel_properties
`,
		nodePattern("n1", m.Node1Label, m.Node1Properties, "n1p", params),
		nodePattern("n2", m.Node2Label, m.Node2Properties, "n2p", params),
		EscapeName(m.RelType),
	)
	params["rel_properties"] = orEmpty(m.RelProperties)

	summary, err := s.write(ctx, cypher, params)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to merge relationship: %w", err)
	}
	return summary, nil
}

func (s *MergeService) write(ctx context.Context, cypher string, params map[string]any) (Summary, error) {
	var summary Summary
	err := s.retry.do(func() error {
		result, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
		if err != nil {
			return err
		}
		if rs, ok := result.(neo4j.ResultSummary); ok {
			summary = summaryFromCounters(rs)
		}
		return nil
	})
	return summary, err
}

func summaryFromCounters(rs neo4j.ResultSummary) Summary {
	c := rs.Counters()
	return Summary{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
		ConstraintsAdded:     c.ConstraintsAdded(),
		ConstraintsRemoved:   c.ConstraintsRemoved(),
	}
}

// apoc.merge.* rejects null maps, empty maps are fine
func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
