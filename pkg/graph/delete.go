package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DeleteService removes graph content
type DeleteService struct {
	client *Client
	logger ectologger.Logger
	retry  retryPolicy
}

// NewDeleteService creates a new delete service
func NewDeleteService(client *Client, logger ectologger.Logger, maxRetries int, retryDelay time.Duration) *DeleteService {
	return &DeleteService{
		client: client,
		logger: logger,
		retry:  newRetryPolicy(maxRetries, retryDelay),
	}
}

// DeleteResult reports what a full wipe removed.
type DeleteResult struct {
	NodesDeleted         int
	RelationshipsDeleted int
	ConstraintsDropped   int
}

// DeleteAll wipes the database: relationships first, then nodes, then every
// constraint. Deletes are batched with CALL { } IN TRANSACTIONS so large
// graphs do not exhaust transaction memory; those statements must run on an
// auto-commit session.
func (s *DeleteService) DeleteAll(ctx context.Context) (DeleteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.DeleteService.DeleteAll")
	defer span.End()

	res := DeleteResult{}

	relSummary, err := s.runAutoCommit(ctx, "MATCH ()-[r]->() CALL { WITH r DELETE r } IN TRANSACTIONS OF 50000 ROWS")
	if err != nil {
		return res, fmt.Errorf("failed to delete relationships: %w", err)
	}
	res.RelationshipsDeleted = relSummary.RelationshipsDeleted

	nodeSummary, err := s.runAutoCommit(ctx, "MATCH (n) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 50000 ROWS")
	if err != nil {
		return res, fmt.Errorf("failed to delete nodes: %w", err)
	}
	res.NodesDeleted = nodeSummary.NodesDeleted

	dropped, err := s.dropAllConstraints(ctx)
	if err != nil {
		return res, err
	}
	res.ConstraintsDropped = dropped

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"nodes_deleted":         res.NodesDeleted,
		"relationships_deleted": res.RelationshipsDeleted,
		"constraints_dropped":   res.ConstraintsDropped,
	}).Info("Deleted database content")
	return res, nil
}

// DeleteNodes detach-deletes all nodes with the given label and properties.
func (s *DeleteService) DeleteNodes(ctx context.Context, label string, properties map[string]any) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.DeleteService.DeleteNodes")
	defer span.End()

	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH %s DETACH DELETE n", nodePattern("n", label, properties, "p", params))

	summary, err := s.write(ctx, cypher, params)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to delete %s nodes: %w", label, err)
	}
	return summary, nil
}

// DeleteAttachedNodes detach-deletes the far side of every match of the
// given triple pattern. Used to drop a parent's stale sub-entity nodes
// before they are recreated with fresh positional identities.
func (s *DeleteService) DeleteAttachedNodes(ctx context.Context, q TripleQuery) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.DeleteService.DeleteAttachedNodes")
	defer span.End()

	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH %s%s%s DETACH DELETE n2",
		nodePattern("n1", q.Node1Label, q.Node1Properties, "n1p", params),
		relPattern("r", q.RelType, q.RelProperties, "rp", params),
		nodePattern("n2", q.Node2Label, q.Node2Properties, "n2p", params),
	)

	summary, err := s.write(ctx, cypher, params)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to delete attached nodes: %w", err)
	}
	return summary, nil
}

func (s *DeleteService) write(ctx context.Context, cypher string, params map[string]any) (Summary, error) {
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

func (s *DeleteService) runAutoCommit(ctx context.Context, cypher string) (Summary, error) {
	result, err := s.client.Run(ctx, cypher, nil)
	if err != nil {
		return Summary{}, err
	}
	rs, err := result.Consume(ctx)
	if err != nil {
		return Summary{}, err
	}
	return summaryFromCounters(rs), nil
}

func (s *DeleteService) dropAllConstraints(ctx context.Context) (int, error) {
	result, err := s.client.Run(ctx, "SHOW ALL CONSTRAINTS YIELD name RETURN name", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list constraints: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list constraints: %w", err)
	}

	dropped := 0
	for _, record := range records {
		v, ok := record.Get("name")
		if !ok {
			continue
		}
		name, ok := v.(string)
		if !ok {
			continue
		}
		res, err := s.client.Run(ctx, fmt.Sprintf("DROP CONSTRAINT %s IF EXISTS", EscapeName(name)), nil)
		if err != nil {
			return dropped, fmt.Errorf("failed to drop constraint %s: %w", name, err)
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return dropped, fmt.Errorf("failed to drop constraint %s: %w", name, err)
		}
		dropped += summary.Counters().ConstraintsRemoved()
	}
	return dropped, nil
}
