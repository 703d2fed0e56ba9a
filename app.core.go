package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QueuePrefix prefixes the redis lists of book change events.
const QueuePrefix = "bapi"

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	redisClient    *redis.Client
	cleanups       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// ensure the logs folder exists and setup the logging module.
	if err = os.MkdirAll(filepath.Dir(config.LogFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	clock := NewClock(config.IsProduction)
	logWriter := NewRotatingWriter(config)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{
		logger:   logger,
		config:   config,
		cleanups: []func() error{flusher, logWriter.Close},
	}

	// The redis client serves the redis storage and the replica queues.
	if config.Storage.Driver == RedisDriver || config.Replica.Enable {
		client, err := GetRedisClient(config)
		if err != nil {
			_ = client.Close()
			app.Clean()
			return nil, fmt.Errorf("failed to connect to redis server: %s", err)
		}
		app.setRedisClient(client)
	}

	storage, queue, err := app.setupBackends()
	if err != nil {
		app.Clean()
		return nil, err
	}

	ids := NewIDsHandler()
	bookService := NewBookService(logger, config, clock, ids, storage, queue)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		ids,
		bookService,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	return app, nil
}

// setRedisClient keeps the shared redis client and closes it on cleanup.
func (app *App) setRedisClient(client *redis.Client) {
	app.redisClient = client
	app.addCleanup(client.Close)
}

// setupBackends opens the book storage and the replica when enabled. Every
// opened resource is registered for cleanup, even when a later step fails.
func (app *App) setupBackends() (BookStorage, Queuer, error) {
	storage, err := app.setupStorage()
	if err != nil {
		return nil, nil, err
	}
	app.addCleanup(storage.Close)

	if !app.config.Replica.Enable {
		return storage, nil, nil
	}
	queue, err := app.setupReplica()
	if err != nil {
		return nil, nil, err
	}
	return storage, queue, nil
}

// setupStorage opens the book storage selected by the configured driver.
func (app *App) setupStorage() (BookStorage, error) {
	switch app.config.Storage.Driver {
	case BoltDriver:
		client, err := GetBoltDBClient(&app.config.BoltDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to boltDB server: %s", err)
		}
		return NewBoltBookStorage(app.logger, &app.config.BoltDB, client), nil
	case RedisDriver:
		return NewRedisBookStorage(app.logger, app.redisClient), nil
	default:
		client, err := GetSQLiteClient(app.config)
		if err != nil {
			return nil, fmt.Errorf("failed to setup sqlite database: %s", err)
		}
		return NewSQLiteBookStorage(app.logger, client), nil
	}
}

// setupReplica opens the bolt archive and registers the consumer
// which mirrors the queued book changes into it.
func (app *App) setupReplica() (Queuer, error) {
	replicaConfig := app.config.Replica.BoltDB()
	client, err := GetBoltDBClient(&replicaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to setup replica database: %s", err)
	}
	replica := NewBoltBookStorage(app.logger.Named("replica"), &replicaConfig, client)
	app.addCleanup(replica.Close)

	queue := NewRedisQueue(app.redisClient, QueuePrefix)
	consumer := NewReplicaConsumer(app.logger.Named("replica"), queue, replica, time.Second)
	app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
		return consumer.Consume(ctx, CreateQueue, UpdateQueue, DeleteQueue)
	})
	return queue, nil
}

// addCleanup registers f to run before the already registered cleanups.
// The log flusher and writer stay last so storage errors are recorded.
func (app *App) addCleanup(f func() error) {
	app.cleanups = append([]func() error{f}, app.cleanups...)
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		if err := f(); err != nil {
			app.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("app.storage", app.config.Storage.Driver),
			zap.Bool("app.replica", app.config.Replica.Enable),
		)
		err := app.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch err {
		case nil, http.ErrServerClosed:
			app.logger.Info("api server graceful shutdown succeeded")
		case context.DeadlineExceeded:
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
