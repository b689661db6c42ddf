package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/clusterview/internal/capacity"
	"github.com/MrSnakeDoc/clusterview/internal/cephapi"
	"github.com/MrSnakeDoc/clusterview/internal/config"
	"github.com/MrSnakeDoc/clusterview/internal/filesystems"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
	"github.com/MrSnakeDoc/clusterview/internal/notify"
	"github.com/MrSnakeDoc/clusterview/internal/prom"
	"github.com/MrSnakeDoc/clusterview/internal/redis"
	"github.com/MrSnakeDoc/clusterview/internal/scheduler"
	"github.com/MrSnakeDoc/clusterview/internal/sources/inventory"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
	"github.com/MrSnakeDoc/clusterview/internal/subsystems"
	"github.com/MrSnakeDoc/clusterview/internal/tasks"
	"github.com/MrSnakeDoc/clusterview/internal/version"
)

// clusterSource is what both the management API client and the offline
// inventory provide to the gateway aggregators.
type clusterSource interface {
	gateway.ClusterSource
	gateway.PlacementUpdater
}

type App struct {
	cfg               *config.Config
	logger            logger.Logger
	server            *httpserver.Server
	redisClient       *goredis.Client
	registry          *gateway.Registry
	capacity          *capacity.Aggregator
	totals            *scheduler.Poller
	viewRefresher     *scheduler.ViewRefresher
	inventoryReloader *scheduler.InventoryReloader
	gc                *scheduler.GarbageCollector
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Cluster source: offline inventory (lab mode) or the management API.
	var (
		source          clusterSource
		fsAgg           *filesystems.Aggregator
		subAgg          *subsystems.Aggregator
		invSource       *inventory.Source
		inventoryReload chan struct{}
		sourceName      string
		apiURL          string
	)
	if cfg.InventoryFile != "" {
		loggerClient.Info("loading offline inventory", logger.String("file", cfg.InventoryFile))
		src, err := inventory.NewSource(inventory.NewLoader(cfg.InventoryFile), loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to load inventory: %v", err)
			os.Exit(1)
		}
		invSource = src
		source = src
		inventoryReload = make(chan struct{}, 1)
		sourceName = "inventory"
	} else {
		client, err := cephapi.New(cephapi.Options{
			BaseURL:    cfg.APIURL,
			Token:      cfg.APIToken,
			Timeout:    cfg.FetchTimeout,
			Attempts:   cfg.APIAttempts,
			RetryDelay: cfg.APIRetry,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to create cluster API client: %v", err)
			os.Exit(1)
		}
		source = client
		fsAgg = filesystems.New(client, loggerClient)
		subAgg = subsystems.New(client, loggerClient)
		sourceName = "cluster-api"
		apiURL = cfg.APIURL
	}

	// Capacity card, only with a Prometheus endpoint.
	var (
		capAgg *capacity.Aggregator
		totals *scheduler.Poller
	)
	if cfg.PrometheusURL != "" {
		promClient, err := prom.New(cfg.PrometheusURL, cfg.FetchTimeout, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to create prometheus client: %v", err)
			os.Exit(1)
		}
		capAgg = capacity.New(promClient, prom.CapacityQueries, cfg.PollInterval, loggerClient)
		feeder := &capacity.TotalsFeeder{
			Source:     promClient,
			Target:     capAgg,
			TotalQuery: prom.TotalBytesQuery,
			UsedQuery:  prom.UsedBytesQuery,
		}
		totals = scheduler.NewPoller(metrics.PipelineCapacity+"_totals", cfg.PollInterval, feeder.Push, loggerClient)
	} else {
		loggerClient.Info("prometheus not configured, capacity card disabled")
	}

	// Redis is optional: without it nothing is persisted across restarts.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
	)
	if cfg.RedisEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Warn("redis unavailable, continuing without persistence", logger.Error(err))
		} else {
			redisClient = client
			store = redisstore.NewStore(client)
			loggerClient.Info("Redis initialized successfully")
		}
	} else {
		loggerClient.Info("redis not configured, views are kept in memory only")
	}

	memIndex := index.NewMemoryIndex()
	tracker := tasks.NewTracker(loggerClient, cfg.TaskHistory)
	center := notify.NewCenter(loggerClient, cfg.NotificationHistory)

	registry := gateway.NewRegistry(gateway.Deps{
		Source:   source,
		Updater:  source,
		Tasks:    tracker,
		Notifier: center,
		Observer: newCountObserver(loggerClient),
		Logger:   loggerClient,
	})

	// Warm the index and the capacity card from the last run.
	if store != nil {
		syncer := scheduler.NewSnapshotSyncer(store, memIndex, capacityState(capAgg), loggerClient)
		if err := syncer.Sync(context.Background()); err != nil {
			loggerClient.Warn("failed to sync from redis on startup, views will load from the cluster",
				logger.Error(err))
		}
	}

	reloadTrigger := make(chan struct{}, 1)
	viewRefresher := scheduler.NewViewRefresher(
		registry.Selector(),
		filesystemLister(fsAgg),
		capacityState(capAgg),
		store,
		memIndex,
		loggerClient,
		cfg.ViewRefreshInterval,
		reloadTrigger,
	)

	var inventoryReloader *scheduler.InventoryReloader
	if invSource != nil {
		inventoryReloader = scheduler.NewInventoryReloader(
			invSource,
			loggerClient,
			cfg.InventoryReloadInterval,
			inventoryReload,
			func() {
				// New placements: refresh the views right away.
				select {
				case reloadTrigger <- struct{}{}:
				default:
				}
			},
		)
	}

	gc := scheduler.NewGarbageCollector(
		registry,
		store,
		memIndex,
		loggerClient,
		cfg.GCInterval,
		cfg.GCThreshold,
	)

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:                 loggerClient,
		StartTime:              time.Now(),
		Version:                version.Version,
		Commit:                 version.Commit,
		BuildDate:              version.BuildDate,
		GoVersion:              version.GoVersion,
		TimeNow:                time.Now,
		AllowedHosts:           cfg.AllowedHosts,
		AllowedCIDRS:           cfg.AllowedCIDRS,
		TrustProxy:             cfg.TrustProxy,
		CORSOrigins:            cfg.CORSOrigins,
		MutationRPS:            cfg.MutationRPS,
		FetchTimeout:           cfg.FetchTimeout,
		APIURL:                 apiURL,
		PrometheusURL:          cfg.PrometheusURL,
		RedisClient:            redisClient,
		Store:                  store,
		MemoryIndex:            memIndex,
		Gateways:               registry,
		Capacity:               capAgg,
		Filesystems:            fsAgg,
		Subsystems:             subAgg,
		Tasks:                  tracker,
		Notifications:          center,
		ReloadTrigger:          reloadTrigger,
		InventoryReloadTrigger: inventoryReload,
		SourceName:             sourceName,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:               cfg,
		logger:            loggerClient,
		server:            server,
		redisClient:       redisClient,
		registry:          registry,
		capacity:          capAgg,
		totals:            totals,
		viewRefresher:     viewRefresher,
		inventoryReloader: inventoryReloader,
		gc:                gc,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting clusterview v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start view refresher (first refresh happens synchronously)
	a.viewRefresher.Start(ctx)
	a.logger.Info("view refresher started",
		logger.Duration("interval", a.cfg.ViewRefreshInterval))

	if a.inventoryReloader != nil {
		a.inventoryReloader.Start(ctx)
		a.logger.Info("inventory reloader started",
			logger.Duration("interval", a.cfg.InventoryReloadInterval))
	}

	if a.capacity != nil {
		a.totals.Start(ctx)
		a.capacity.Start(ctx)
		a.logger.Info("capacity polling started",
			logger.Duration("interval", a.cfg.PollInterval))
	}

	a.gc.Start(ctx)
	a.logger.Info("garbage collector started",
		logger.Duration("interval", a.cfg.GCInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.viewRefresher.Stop()
	if a.inventoryReloader != nil {
		a.inventoryReloader.Stop()
	}
	if a.capacity != nil {
		a.capacity.Stop()
		a.totals.Stop()
	}
	a.gc.Stop()
	a.registry.DisposeAll()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ clusterview stopped cleanly")
	return nil
}

// capacityState avoids handing the scheduler a typed nil.
func capacityState(a *capacity.Aggregator) scheduler.CapacityState {
	if a == nil {
		return nil
	}
	return a
}

func filesystemLister(a *filesystems.Aggregator) scheduler.FilesystemLister {
	if a == nil {
		return nil
	}
	return a
}
