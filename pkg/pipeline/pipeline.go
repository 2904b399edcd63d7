// Package pipeline orchestrates a load: read search pages from the FHIR
// server, transform them through the registered models, write the resulting
// merge batches to the graph, and resolve deferred logical references once
// everything is in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/fhir"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/model"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Source is the slice of the FHIR client the pipeline reads from.
type Source interface {
	Count(ctx context.Context, resourceType string) (int, error)
	ReadBundle(ctx context.Context, path string) (*fhir.Bundle, error)
	NextPath(bundle *fhir.Bundle) string
}

// Store is the slice of the graph the pipeline writes batches to.
type Store interface {
	MergeNodes(ctx context.Context, merges []graph.NodeMerge) (graph.Summary, error)
	MergeRelationships(ctx context.Context, merges []graph.RelationshipMerge) (graph.Summary, error)
}

// Options tune one run.
type Options struct {
	// ChunkSize is how many resources are requested per search page.
	ChunkSize int

	// Limit stops a type's ingest once this many resources were received,
	// 0 loads everything.
	Limit int

	// Parallel fans transforms out per page and loads batches from their
	// own goroutines.
	Parallel bool

	// QueueSize bounds how many drained batches may be loading at once in
	// parallel mode. Reading pages is usually faster than writing them, the
	// bound keeps memory in check.
	QueueSize int
}

// Result reports what one resource type's ingest did.
type Result struct {
	// Total is the resource count the server reported up front.
	Total int

	// Received is how many resources of the requested type were
	// transformed.
	Received int

	// Discarded counts pages that arrived without any entries, which is
	// how a lenient-mode invalid bundle shows up.
	Discarded int

	// Skipped counts entries that could not be used: resources of other
	// types the server interleaved into the pages, and resources without
	// an id.
	Skipped int

	Summary graph.Summary
}

// Pipeline ingests one resource type at a time from a source into a store.
type Pipeline struct {
	source      Source
	store       Store
	registry    *model.Registry
	constraints model.ConstraintCreator
	deleter     model.AttachedNodeDeleter
	logger      ectologger.Logger
	opts        Options
}

// New creates a pipeline
func New(source Source, store Store, registry *model.Registry, constraints model.ConstraintCreator, deleter model.AttachedNodeDeleter, logger ectologger.Logger, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 250
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10
	}
	return &Pipeline{
		source:      source,
		store:       store,
		registry:    registry,
		constraints: constraints,
		deleter:     deleter,
		logger:      logger,
		opts:        opts,
	}
}

// Run ingests every resource of the given type. databaseDeleted tells the
// models the database was wiped this run, so there is no stale content to
// clean up before re-merging sub-entities.
func (p *Pipeline) Run(ctx context.Context, resourceType string, databaseDeleted bool) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Run")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"resource_type": resourceType,
		"trace_id":      tracing.GetTraceID(ctx),
		"span_id":       tracing.GetSpanID(ctx),
	})
	res := Result{}

	m, err := p.registry.Get(resourceType)
	if err != nil {
		return res, err
	}

	added, err := m.Initialize(ctx, p.constraints)
	if err != nil {
		return res, fmt.Errorf("failed to initialize %s model: %w", resourceType, err)
	}
	log.WithFields(map[string]any{"constraints_added": added}).Info("Initialized model")

	total, err := p.source.Count(ctx, resourceType)
	if err != nil {
		return res, err
	}
	res.Total = total
	if total == 0 {
		log.Warn("Server reports no resources of this type")
		return res, nil
	}

	loads := newLoadGroup(p.store, p.opts)
	defer loads.wait()

	path := fmt.Sprintf("%s?_count=%d", resourceType, p.opts.ChunkSize)
	for path != "" {
		bundle, err := p.source.ReadBundle(ctx, path)
		if err != nil {
			if errors.Is(err, fhir.ErrValidation) {
				return res, fmt.Errorf("server sent an invalid bundle for %s, consider disabling validation if the content is trusted: %w", resourceType, err)
			}
			return res, err
		}

		if len(bundle.Entry) == 0 {
			res.Discarded++
			log.Warn("Discarding page without entries")
			path = p.source.NextPath(bundle)
			continue
		}

		res.Skipped += len(bundle.Entry) - len(bundle.EntriesOfType(resourceType))

		// a resource without an id has no identity to merge on
		var resources []*fhir.Resource
		for _, r := range bundle.EntriesOfType(resourceType) {
			if r.ID() == "" {
				log.Warnf("Skipping %s resource without an id", resourceType)
				res.Skipped++
				continue
			}
			resources = append(resources, r)
		}

		if len(resources) == 0 {
			log.Debug("Page contained no usable resources")
			path = p.source.NextPath(bundle)
			continue
		}

		batch := model.NewBatch()
		tc := &model.Context{
			Batch:           batch,
			DatabaseDeleted: databaseDeleted,
			Deleter:         p.deleter,
			Logger:          p.logger,
		}

		if err := p.transform(ctx, m, resources, tc); err != nil {
			return res, fmt.Errorf("failed to transform %s resources: %w", resourceType, err)
		}
		res.Received += len(resources)

		nodes, rels := batch.Drain()
		loads.enqueue(ctx, nodes, rels)
		if err := loads.failure(); err != nil {
			return res, err
		}

		log.WithFields(map[string]any{
			"received": res.Received,
			"total":    res.Total,
		}).Infof("Processed page of %d resources", len(resources))

		if p.opts.Limit > 0 && res.Received >= p.opts.Limit {
			log.Infof("Reached limit of %d resources", p.opts.Limit)
			break
		}
		path = p.source.NextPath(bundle)
	}

	summary, err := loads.wait()
	res.Summary = summary
	return res, err
}

func (p *Pipeline) transform(ctx context.Context, m model.Model, resources []*fhir.Resource, tc *model.Context) error {
	if !p.opts.Parallel {
		for _, r := range resources {
			if err := m.Transform(ctx, r, tc); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resources {
		g.Go(func() error {
			return m.Transform(gctx, r, tc)
		})
	}
	return g.Wait()
}

// loadGroup writes drained batches. In parallel mode every batch takes a
// slot on a bounded queue and loads from its own goroutine, so the next
// pages can be read and transformed while earlier batches are written; when
// the queue is full enqueue blocks until a load finishes.
type loadGroup struct {
	store Store

	// nil in serial mode
	slots chan struct{}

	wg  sync.WaitGroup
	mu  sync.Mutex
	sum graph.Summary
	err error
}

func newLoadGroup(store Store, opts Options) *loadGroup {
	lg := &loadGroup{store: store}
	if opts.Parallel {
		lg.slots = make(chan struct{}, opts.QueueSize)
	}
	return lg
}

func (l *loadGroup) enqueue(ctx context.Context, nodes []graph.NodeMerge, rels []graph.RelationshipMerge) {
	if l.slots == nil {
		l.record(l.load(ctx, nodes, rels))
		return
	}

	l.slots <- struct{}{}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.slots }()
		l.record(l.load(ctx, nodes, rels))
	}()
}

func (l *loadGroup) load(ctx context.Context, nodes []graph.NodeMerge, rels []graph.RelationshipMerge) (graph.Summary, error) {
	sum, err := l.store.MergeNodes(ctx, nodes)
	if err != nil {
		return sum, err
	}
	relSum, err := l.store.MergeRelationships(ctx, rels)
	sum.Add(relSum)
	return sum, err
}

func (l *loadGroup) record(sum graph.Summary, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sum.Add(sum)
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *loadGroup) failure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *loadGroup) wait() (graph.Summary, error) {
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sum, l.err
}
