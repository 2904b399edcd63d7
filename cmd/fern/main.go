package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/fhir"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/model"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type flags struct {
	fhirURL      string
	resources    []string
	deleteAll    bool
	resolve      bool
	chunkSize    int
	limit        int
	noValidation bool
	parallel     bool
	logLevel     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := &flags{}
	cmd := &cobra.Command{
		Use:   "fern",
		Short: "Load FHIR resources from a REST server into a Neo4j property graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&f.fhirURL, "fhir", "", "base URL of the FHIR server (overrides FHIR_BASE_URL)")
	cmd.Flags().StringSliceVarP(&f.resources, "resource", "r", nil, "resource type to load, repeatable (default: every supported type)")
	cmd.Flags().BoolVar(&f.deleteAll, "delete", false, "wipe the graph database before loading")
	cmd.Flags().BoolVar(&f.resolve, "resolve", true, "resolve logical references after loading")
	cmd.Flags().IntVar(&f.chunkSize, "chunksize", 0, "resources per search page (overrides FHIR_CHUNK_SIZE)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "stop after this many resources per type, 0 loads everything")
	cmd.Flags().BoolVar(&f.noValidation, "novalidation", false, "accept search bundles that fail validation")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "transform and load concurrently")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// graphStore bundles the per-concern graph services into the store the
// pipeline and resolver work against.
type graphStore struct {
	*graph.MergeService
	*graph.QueryService
	*graph.DeleteService
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg, f)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	log := logger.WithFields(map[string]any{"run_id": uuid.NewString()})

	if cfg.FHIRBaseURL == "" {
		return fmt.Errorf("no FHIR server given, set --fhir or FHIR_BASE_URL")
	}

	client, err := graph.NewClient(graph.Config{
		Host:           cfg.GraphDBHost,
		Port:           cfg.GraphDBPort,
		Username:       cfg.GraphDBUser,
		Password:       cfg.GraphDBPassword,
		Database:       cfg.GraphDBName,
		MaxPoolSize:    cfg.GraphDBMaxPoolSize,
		ConnectTimeout: time.Duration(cfg.GraphDBTimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	if err := client.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph database not reachable: %w", err)
	}
	if err := client.CheckAPOC(ctx); err != nil {
		return err
	}

	merges := graph.NewMergeService(client, log, cfg.WriteRetryCount, cfg.WriteRetryDelay)
	constraints := graph.NewConstraintService(client, log)
	deletes := graph.NewDeleteService(client, log, cfg.WriteRetryCount, cfg.WriteRetryDelay)
	queries := graph.NewQueryService(client, log)
	store := &graphStore{merges, queries, deletes}

	source := fhir.NewClient(fhir.Config{
		BaseURL:         cfg.FHIRBaseURL,
		Token:           cfg.FHIRToken,
		Timeout:         time.Duration(cfg.FHIRTimeoutSeconds) * time.Second,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		Strict:          cfg.ValidateResources,
	}, log)
	if _, err := source.Metadata(ctx); err != nil {
		return err
	}

	databaseDeleted := false
	if f.deleteAll {
		result, err := deletes.DeleteAll(ctx)
		if err != nil {
			return err
		}
		log.WithFields(map[string]any{
			"nodes_deleted":         result.NodesDeleted,
			"relationships_deleted": result.RelationshipsDeleted,
			"constraints_dropped":   result.ConstraintsDropped,
		}).Info("Wiped graph database")
		databaseDeleted = true
	}

	registry := model.NewRegistry(
		model.NewPatientModel(),
		model.NewOrganizationModel(),
	)

	resourceTypes := f.resources
	if len(resourceTypes) == 0 {
		resourceTypes = registry.Types()
		sort.Strings(resourceTypes)
	}

	p := pipeline.New(source, store, registry, constraints, deletes, log, pipeline.Options{
		ChunkSize: cfg.ChunkSize,
		Limit:     f.limit,
		Parallel:  cfg.Parallel,
		QueueSize: cfg.LoadQueueSize,
	})

	for _, resourceType := range resourceTypes {
		result, err := p.Run(ctx, resourceType, databaseDeleted)
		if err != nil {
			return err
		}
		log.WithFields(map[string]any{
			"resource_type": resourceType,
			"received":      result.Received,
			"total":         result.Total,
			"discarded":     result.Discarded,
			"skipped":       result.Skipped,
			"nodes_created": result.Summary.NodesCreated,
		}).Info("Finished loading resource type")

		if missing, err := constraints.Audit(ctx); err != nil {
			log.WithError(err).Warn("Could not audit constraints")
		} else if len(missing) > 0 {
			log.WithFields(map[string]any{"labels": missing}).Warn("Labels without a uniqueness constraint found, check the models that produce them")
		}
	}

	if f.resolve {
		result, err := pipeline.NewResolver(store, log).Resolve(ctx)
		if err != nil {
			return err
		}
		log.WithFields(map[string]any{
			"resolved":   result.Resolved,
			"unresolved": result.Unresolved,
		}).Info("Resolved logical references")
	}

	return nil
}

func applyFlags(cfg *config.Config, f *flags) {
	if f.fhirURL != "" {
		cfg.FHIRBaseURL = f.fhirURL
	}
	if f.chunkSize > 0 {
		cfg.ChunkSize = f.chunkSize
	}
	if f.noValidation {
		cfg.ValidateResources = false
	}
	if f.parallel {
		cfg.Parallel = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
