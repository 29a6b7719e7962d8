// Package container wires the expense approval service together and owns
// its lifecycle.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/routing"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/authz"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - external
	redis      *redis.Client
	locker     port.ClaimLocker
	notifier   port.Notifier
	advisor    port.ClaimAdvisor
	converter  port.CurrencyConverter
	router     *routing.Router
	authorizer *authz.Authorizer

	// Infrastructure - storage
	archive *storage.LocalFileStorage

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes all components and starts the workers:
// 1. Database and repositories
// 2. External clients (lock, Lark, OpenAI, currency, routing, authz)
// 3. Storage
// 4. Event dispatcher and workflow engine
// 5. Application services and their event handlers
// 6. Bootstrap administrator
// 7. Workers
//
// On failure everything already initialized is closed.
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	defer func() {
		if err != nil {
			c.logger.Error("Container start failed, releasing resources", zap.Error(err))
			_ = c.teardown()
		}
	}()

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized",
		zap.Bool("lark", c.config.Lark.Enabled()),
		zap.Bool("advisory", c.advisor != nil),
		zap.Bool("currency", c.converter != nil),
		zap.Bool("routing", c.router != nil),
		zap.String("lock_backend", c.config.Lock.Backend))

	if err := c.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized", zap.Bool("archive", c.archive != nil))

	c.initDispatcherAndWorkflow()
	c.logger.Info("Dispatcher and workflow engine initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap directory: %w", err)
	}

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// waits for in-flight notification and advisory handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports each component; a nil error means healthy
func (c *Container) Health(ctx context.Context) map[string]error {
	status := make(map[string]error)

	if c.db != nil {
		status["database"] = c.db.PingContext(ctx)
	} else {
		status["database"] = errors.New("not initialized")
	}

	if c.redis != nil {
		status["redis"] = c.redis.Ping(ctx).Err()
	}

	switch {
	case c.workers == nil:
		status["workers"] = errors.New("not initialized")
	case !c.workers.IsRunning():
		status["workers"] = errors.New("not running")
	default:
		status["workers"] = nil
	}

	if c.dispatcher == nil {
		status["dispatcher"] = errors.New("not initialized")
	} else {
		status["dispatcher"] = nil
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TxManager
	c.repositories = ProvideRepositories(c.db, c.logger)
	return nil
}

func (c *Container) initExternalClients() error {
	locks, err := ProvideLocker(c.ctx, c.config.Lock, c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.locker = locks.Locker
	c.redis = locks.Redis

	c.notifier = ProvideNotifier(c.config.Lark, c.logger)

	if c.advisor, err = ProvideAdvisor(c.config.OpenAI, c.logger); err != nil {
		return err
	}

	c.converter = ProvideConverter(c.config.Currency, c.logger)

	if c.router, err = ProvideRouter(c.config.Routing, c.logger); err != nil {
		return err
	}
	if c.router != nil {
		c.logger.Info("Routing policies loaded", zap.Int("count", c.router.Len()))
	}

	if c.authorizer, err = ProvideAuthorizer(c.config.Authz); err != nil {
		return err
	}
	return nil
}

func (c *Container) initStorage() error {
	archive, err := ProvideArchive(c.config.Export, c.logger)
	if err != nil {
		return err
	}
	c.archive = archive
	return nil
}

func (c *Container) initDispatcherAndWorkflow() {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine = ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Locker:     c.locker,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
}

func (c *Container) initServices() error {
	var archive port.FileStorage
	if c.archive != nil {
		archive = c.archive
	}

	services, err := ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Engine:     c.engine,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Advisor:    c.advisor,
		Converter:  c.converter,
		Router:     c.router,
		Archive:    archive,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) bootstrap() error {
	cfg := c.config.Bootstrap
	if !cfg.Enabled() {
		return nil
	}

	admin, err := c.services.Directory.Bootstrap(c.ctx, service.BootstrapInput{
		CompanyName: cfg.CompanyName,
		Currency:    cfg.Currency,
		AdminEmail:  cfg.AdminEmail,
		AdminName:   cfg.AdminName,
	})
	if err != nil {
		return err
	}
	c.logger.Info("Bootstrap administrator ready",
		zap.Int64("user_id", admin.ID),
		zap.Int64("company_id", admin.CompanyID))
	return nil
}

func (c *Container) initWorkers() error {
	c.workers = ProvideWorkers(&WorkerDeps{
		Config:   c.config,
		Services: c.services,
		Archive:  c.archive,
		Logger:   c.logger,
	})
	return c.workers.StartAll(c.ctx)
}

// Services returns all application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Authorizer returns the route authorizer
func (c *Container) Authorizer() *authz.Authorizer {
	return c.authorizer
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the workflow engine
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}
