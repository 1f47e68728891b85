package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/hearsay/internal/api"
	"github.com/nidhogg/hearsay/internal/archive"
	"github.com/nidhogg/hearsay/internal/bus"
	"github.com/nidhogg/hearsay/internal/config"
	"github.com/nidhogg/hearsay/internal/embedding"
	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/sim"
	"github.com/nidhogg/hearsay/internal/store"
	"github.com/nidhogg/hearsay/internal/vectorstore"
	"github.com/nidhogg/hearsay/internal/world"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/hearsay.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Hearsay...", zap.String("config", cfgPath))
	sc := cfg.Simulation

	// Persistence: PostgreSQL when configured, otherwise embedded SQLite
	var repo store.Repository
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := store.New(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, falling back to SQLite", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), cfg.Database.Postgres.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			repo = ps
		}
	}
	if repo == nil && cfg.Database.SQLite.Path != "" {
		lite, sqlErr := store.OpenSQLite(cfg.Database.SQLite.Path, logger)
		if sqlErr != nil {
			logger.Warn("SQLite unavailable, running without persistence", zap.Error(sqlErr))
		} else {
			repo = lite
		}
	}

	// World clock drives everything in simulated time; a restored world
	// continues from where its last snapshot left off
	start := time.Now().UTC()
	if repo != nil {
		resume, rErr := store.ResumeTime(context.Background(), repo)
		if rErr != nil {
			logger.Warn("failed to read saved world time", zap.Error(rErr))
		} else if !resume.IsZero() {
			start = resume
			logger.Info("Resuming world time", zap.Time("world_time", start))
		}
	}
	clock := world.NewWorldClock(start, sc.TickInterval.Duration, sc.ClockSpeed, logger)

	var rng sim.RandomSource
	if sc.RNGSeed != 0 {
		rng = sim.NewSeeded(sc.RNGSeed)
	}
	bank := memory.NewBank(sc.MemoryCapacity, clock, sc.DecayConfig(), logger)
	network := rumor.NewNetwork(clock, rng, sc.RumorOptions(), logger)
	atlas := world.NewAtlas(logger)
	routines := world.NewRoutines(atlas, logger)

	var snapshotter *store.Snapshotter
	if repo != nil {
		snapshotter = store.NewSnapshotter(repo, bank, network, clock, logger)
		if err := snapshotter.Restore(context.Background()); err != nil {
			logger.Warn("failed to restore snapshot", zap.Error(err))
		}
		for _, owner := range bank.Owners() {
			if st, ok := bank.Get(owner); ok {
				network.Register(owner, st)
			}
		}
	}

	// Social graph: Neo4j relations merged with faction/proximity ties
	social := world.MergedSocial{world.NewProximitySocial(atlas, sc.SocialRadius)}
	var relations *world.RelationGraph
	var driver neo4j.DriverWithContext
	if nc := cfg.Database.Neo4j; nc.URI != "" {
		d, nErr := neo4j.NewDriverWithContext(nc.URI, neo4j.BasicAuth(nc.User, nc.Password, ""))
		if nErr == nil {
			nErr = d.VerifyConnectivity(context.Background())
		}
		if nErr != nil {
			logger.Warn("Neo4j unavailable, running without relation graph", zap.Error(nErr))
			if d != nil {
				d.Close(context.Background())
			}
		} else {
			driver = d
			relations = world.NewRelationGraph(driver, nc.DecayRate, nc.MinStrength, logger)
			social = append(social, relations)
			network.AddSpreadListener(relations)
			logger.Info("Neo4j relation graph connected")
		}
	}

	ticker := world.NewDailyTicker(sc.DayLength.Duration, network, atlas, social,
		sc.SpreadRadius, sc.SpreadProbability, logger)
	if relations != nil {
		ticker.AddSink(world.TickSinkFunc(func(_ context.Context, at time.Time, _ rumor.TickStats) error {
			relations.OnTick(at)
			return nil
		}))
	}
	if snapshotter != nil {
		ticker.AddSink(snapshotter)
	}

	// Event bus
	var eventBus *bus.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := bus.New(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event bus", zap.Error(busErr))
		} else {
			eventBus = b
			ticker.AddSink(eventBus)
			network.AddRemovalListener(eventBus)
		}
	}

	// Folklore archive
	var qdrant *vectorstore.Client
	var folklore *archive.Archive
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	archiveDone := make(chan struct{})
	if cfg.Database.Qdrant.Host != "" {
		embedder, embErr := embedding.New(cfg.Embedding)
		if embErr == nil {
			qdrant, embErr = vectorstore.NewClient(cfg.Database.Qdrant)
		}
		if embErr == nil {
			folklore = archive.New(embedder, qdrant, sc.ArchiveQueue, logger)
			embErr = folklore.Init(context.Background())
		}
		if embErr != nil {
			logger.Warn("Qdrant unavailable, running without folklore archive", zap.Error(embErr))
			folklore = nil
		} else {
			network.AddRemovalListener(folklore)
			logger.Info("Folklore archive ready", zap.String("collection", archive.Collection))
		}
	}
	if folklore != nil {
		go func() {
			folklore.Run(archiveCtx)
			close(archiveDone)
		}()
	} else {
		close(archiveDone)
	}

	clock.AddListener(routines)
	clock.AddListener(world.NewMemoryDecayer(bank, sc.DayLength.Duration, logger))
	clock.AddListener(ticker)
	clock.Start()
	logger.Info("World simulation started",
		zap.Float64("speed", sc.ClockSpeed),
		zap.Duration("day_length", sc.DayLength.Duration))

	// Build HTTP handler
	handler := api.NewHandler(network, bank, atlas, routines, clock, ticker, logger)
	if folklore != nil {
		handler.SetFolklore(folklore)
	}
	if eventBus != nil {
		handler.SetEvents(eventBus)
	}
	if relations != nil {
		handler.SetRelations(relations)
	}

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Hearsay listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Hearsay...")
	clock.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	if snapshotter != nil {
		if err := snapshotter.Save(ctx); err != nil {
			logger.Warn("final snapshot failed", zap.Error(err))
		}
	}
	stopArchive()
	<-archiveDone

	if repo != nil {
		repo.Close()
	}
	if eventBus != nil {
		eventBus.Close()
	}
	if qdrant != nil {
		qdrant.Close()
	}
	if driver != nil {
		driver.Close(ctx)
	}
}

func newLogger(sc config.ServerConfig) (*zap.Logger, error) {
	var zc zap.Config
	if sc.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if sc.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(sc.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}
