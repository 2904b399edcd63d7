package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// QueryService handles graph reads (OpenCypher)
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		client: client,
		logger: logger,
	}
}

// TripleQuery matches a (n1)-[r]->(n2) pattern. Empty labels or an empty
// relationship type match anything; property maps narrow the match. Values
// are bound as parameters, names are backtick-escaped.
type TripleQuery struct {
	Node1Label      string
	Node1Properties map[string]any
	RelType         string
	RelProperties   map[string]any
	Node2Label      string
	Node2Properties map[string]any
}

// Triple is one matched (n1)-[r]->(n2) row.
type Triple struct {
	Node1Labels     []string
	Node1Properties map[string]any
	RelType         string
	RelProperties   map[string]any
	Node2Labels     []string
	Node2Properties map[string]any
}

// MatchTriples returns every (n1)-[r]->(n2) match for the query.
func (s *QueryService) MatchTriples(ctx context.Context, q TripleQuery) ([]Triple, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.MatchTriples")
	defer span.End()

	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH %s%s%s RETURN n1, r, n2",
		nodePattern("n1", q.Node1Label, q.Node1Properties, "n1p", params),
		relPattern("r", q.RelType, q.RelProperties, "rp", params),
		nodePattern("n2", q.Node2Label, q.Node2Properties, "n2p", params),
	)

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		triples := make([]Triple, 0, len(records))
		for _, record := range records {
			n1v, _ := record.Get("n1")
			rv, _ := record.Get("r")
			n2v, _ := record.Get("n2")

			n1, ok1 := n1v.(neo4j.Node)
			rel, ok2 := rv.(neo4j.Relationship)
			n2, ok3 := n2v.(neo4j.Node)
			if !ok1 || !ok2 || !ok3 {
				continue
			}

			triples = append(triples, Triple{
				Node1Labels:     n1.Labels,
				Node1Properties: n1.Props,
				RelType:         rel.Type,
				RelProperties:   rel.Props,
				Node2Labels:     n2.Labels,
				Node2Properties: n2.Props,
			})
		}
		return triples, nil
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to match triples")
		return nil, fmt.Errorf("failed to match triples: %w", err)
	}

	return result.([]Triple), nil
}
