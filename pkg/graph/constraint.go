package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ConstraintService manages uniqueness constraints. MERGE on a node pattern
// without a uniqueness constraint has nothing to lock on, so concurrent
// loads can create duplicate nodes; every label written by a model must be
// constrained on its identifying properties.
type ConstraintService struct {
	client *Client
	logger ectologger.Logger
}

// NewConstraintService creates a new constraint service
func NewConstraintService(client *Client, logger ectologger.Logger) *ConstraintService {
	return &ConstraintService{
		client: client,
		logger: logger,
	}
}

// Constraint is one constraint as reported by the database.
type Constraint struct {
	Name   string
	Labels []string
}

// CreateUnique creates a uniqueness constraint on the given label and
// properties if it does not exist yet, and returns the number of constraints
// actually added (0 or 1). Schema commands cannot run inside explicit
// transactions, so this uses an auto-commit session.
func (s *ConstraintService) CreateUnique(ctx context.Context, label string, properties ...string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ConstraintService.CreateUnique")
	defer span.End()

	parts := make([]string, len(properties))
	for i, p := range properties {
		parts[i] = "n." + EscapeName(p)
	}
	name := strings.Join(append([]string{label}, properties...), "_")

	cypher := fmt.Sprintf(
		"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS UNIQUE",
		EscapeName(name), EscapeName(label), strings.Join(parts, ", "),
	)

	result, err := s.client.Run(ctx, cypher, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create constraint on %s: %w", label, err)
	}

	summary, err := result.Consume(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create constraint on %s: %w", label, err)
	}

	added := summary.Counters().ConstraintsAdded()
	if added > 0 {
		s.logger.WithContext(ctx).Debugf("Created constraint %s", name)
	}
	return added, nil
}

// List returns all constraints in the database.
func (s *ConstraintService) List(ctx context.Context) ([]Constraint, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ConstraintService.List")
	defer span.End()

	result, err := s.client.Run(ctx, "SHOW ALL CONSTRAINTS", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints: %w", err)
	}

	constraints := make([]Constraint, 0, len(records))
	for _, record := range records {
		c := Constraint{}
		if v, ok := record.Get("name"); ok {
			c.Name, _ = v.(string)
		}
		if v, ok := record.Get("labelsOrTypes"); ok {
			if list, ok := v.([]any); ok {
				for _, l := range list {
					if label, ok := l.(string); ok {
						c.Labels = append(c.Labels, label)
					}
				}
			}
		}
		constraints = append(constraints, c)
	}
	return constraints, nil
}

// NodeLabels returns every distinct node label present in the database.
func (s *ConstraintService) NodeLabels(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ConstraintService.NodeLabels")
	defer span.End()

	result, err := s.client.Run(ctx, "CALL db.labels() YIELD label RETURN label", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list node labels: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list node labels: %w", err)
	}

	labels := make([]string, 0, len(records))
	for _, record := range records {
		if v, ok := record.Get("label"); ok {
			if label, ok := v.(string); ok {
				labels = append(labels, label)
			}
		}
	}
	return labels, nil
}

// Audit returns node labels that have no constraint at all, sorted. Such
// labels are unsafe to load in parallel and usually indicate a model that
// forgot to register a constraint for a referenced type.
func (s *ConstraintService) Audit(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ConstraintService.Audit")
	defer span.End()

	constraints, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	labels, err := s.NodeLabels(ctx)
	if err != nil {
		return nil, err
	}

	constrained := make(map[string]bool)
	for _, c := range constraints {
		for _, l := range c.Labels {
			constrained[l] = true
		}
	}

	var missing []string
	for _, l := range labels {
		if !constrained[l] {
			missing = append(missing, l)
		}
	}
	sort.Strings(missing)
	return missing, nil
}
