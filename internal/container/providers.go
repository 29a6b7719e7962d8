package container

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/routing"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/authz"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/infrastructure/currency"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Claims    port.ClaimRepository
	Users     port.UserRepository
	Companies port.CompanyRepository
	History   port.HistoryRepository
}

// LockBundle holds the claim locker and the Redis client backing it, if any
type LockBundle struct {
	Locker port.ClaimLocker
	Redis  *redis.Client
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Directory    service.DirectoryService
	Claims       service.ClaimService
	Notification service.NotificationService
	// Advisory is nil when no OpenAI key is configured
	Advisory service.AdvisoryService
}

// ProvideDatabase opens the database and applies the embedded migrations
func ProvideDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on the shared connection pool
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Claims:    repository.NewClaimRepository(db.DB, logger),
		Users:     repository.NewUserRepository(db.DB, logger),
		Companies: repository.NewCompanyRepository(db.DB, logger),
		History:   repository.NewHistoryRepository(db.DB, logger),
	}
}

// ProvideLocker creates the per-claim lock. The redis backend pings the
// server before returning.
func ProvideLocker(ctx context.Context, lockCfg config.LockConfig, redisCfg config.RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if lockCfg.Backend != "redis" {
		return &LockBundle{Locker: lock.NewLocalLocker()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", redisCfg.Addr, err)
	}

	locker := lock.NewRedisLocker(client, lock.RedisConfig{
		KeyPrefix:   lockCfg.KeyPrefix,
		TTL:         lockCfg.TTL,
		WaitTimeout: lockCfg.WaitTimeout,
	}, utils.NewKVLogger(logger))

	logger.Info("Using redis claim lock", zap.String("addr", redisCfg.Addr))
	return &LockBundle{Locker: locker, Redis: client}, nil
}

// ProvideNotifier creates the Lark notifier. Without credentials the
// notifier only logs the messages it would send.
func ProvideNotifier(cfg config.LarkConfig, logger *zap.Logger) port.Notifier {
	var sender infraLark.MessageSender
	if cfg.Enabled() {
		sender = infraLark.NewIMClient(infraLark.Config{
			AppID:     cfg.AppID,
			AppSecret: cfg.AppSecret,
			BaseURL:   cfg.BaseURL,
		}, logger)
	} else {
		logger.Info("Lark credentials not configured, notifications will be logged only")
	}
	return infraLark.NewNotifier(sender, cfg.AppURL, logger)
}

// ProvideAdvisor creates the OpenAI advisor, or nil when no key is configured
func ProvideAdvisor(cfg config.OpenAIConfig, logger *zap.Logger) (port.ClaimAdvisor, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var policy string
	if cfg.PolicyPath != "" {
		b, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read expense policy: %w", err)
		}
		policy = strings.TrimSpace(string(b))
	}

	var prompts *openai.PromptConfig
	if cfg.PromptsPath != "" {
		p, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = p
	}

	return openai.NewAdvisor(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Policy:  policy,
	}, prompts, logger), nil
}

// ProvideConverter builds the currency converter chain: static table first,
// then the exchange-rate API. Returns nil when neither is configured.
func ProvideConverter(cfg config.CurrencyConfig, logger *zap.Logger) port.CurrencyConverter {
	var converters []port.CurrencyConverter
	if len(cfg.Rates) > 0 {
		converters = append(converters, currency.NewStatic(cfg.Rates))
	}
	if cfg.APIURL != "" {
		converters = append(converters, currency.NewHTTPRates(currency.HTTPConfig{
			BaseURL:    cfg.APIURL,
			CacheTTL:   cfg.CacheTTL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, logger))
	}

	switch len(converters) {
	case 0:
		return nil
	case 1:
		return converters[0]
	default:
		return currency.NewChain(logger, converters...)
	}
}

// ProvideArchive creates the export archive, or nil when archiving is off
func ProvideArchive(cfg config.ExportConfig, logger *zap.Logger) (*storage.LocalFileStorage, error) {
	if cfg.ArchiveDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.ArchiveDir, logger), nil
}

// ProvideRouter loads routing policies, or returns nil when none are configured
func ProvideRouter(cfg config.RoutingConfig, logger *zap.Logger) (*routing.Router, error) {
	if cfg.PolicyPath == "" {
		return nil, nil
	}
	policies, err := routing.LoadPolicies(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	return routing.NewRouter(policies, utils.NewKVLogger(logger))
}

// ProvideAuthorizer creates the route authorizer
func ProvideAuthorizer(cfg config.AuthzConfig) (*authz.Authorizer, error) {
	mode, err := authz.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(authz.Config{
		Mode:       mode,
		ModelPath:  cfg.ModelPath,
		PolicyPath: cfg.PolicyPath,
	})
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
}

// WorkflowDeps holds dependencies required for creating the workflow engine
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.ClaimLocker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the claim workflow engine
func ProvideWorkflowEngine(deps *WorkflowDeps) workflow.Engine {
	return workflow.NewEngine(
		deps.Repos.Claims,
		deps.Repos.History,
		deps.TxManager,
		deps.Locker,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	)
}

// ServiceDeps holds dependencies required for creating services
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Engine     workflow.Engine
	Dispatcher dispatcher.Dispatcher
	Notifier   port.Notifier
	Advisor    port.ClaimAdvisor
	Converter  port.CurrencyConverter
	Router     *routing.Router
	Archive    port.FileStorage
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes their
// event handlers
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	kv := utils.NewKVLogger(deps.Logger)

	maxAmount, err := deps.Config.Claims.MaxAmountDecimal()
	if err != nil {
		return nil, fmt.Errorf("claims.max_amount: %w", err)
	}

	opts := []service.ClaimServiceOption{
		service.WithExporter(export.NewXLSXExporter(deps.Logger)),
		service.WithMaxAmount(maxAmount),
	}
	if deps.Router != nil {
		opts = append(opts, service.WithRouter(deps.Router))
	}
	if deps.Converter != nil {
		opts = append(opts, service.WithConverter(deps.Converter))
	}
	if deps.Archive != nil {
		opts = append(opts, service.WithArchive(deps.Archive))
	}

	bundle := &ServiceBundle{
		Directory: service.NewDirectoryService(deps.Repos.Users, deps.Repos.Companies, deps.TxManager, kv),
		Claims: service.NewClaimService(
			deps.Repos.Claims,
			deps.Repos.Users,
			deps.Repos.Companies,
			deps.Repos.History,
			deps.Engine,
			kv,
			opts...,
		),
		Notification: service.NewNotificationService(deps.Repos.Claims, deps.Repos.Users, deps.Notifier, kv),
	}
	bundle.Notification.RegisterHandlers(deps.Dispatcher)

	if deps.Advisor != nil {
		bundle.Advisory = service.NewAdvisoryService(
			deps.Repos.Claims,
			deps.Repos.Users,
			deps.Repos.History,
			deps.TxManager,
			deps.Advisor,
			kv,
		)
		bundle.Advisory.RegisterHandlers(deps.Dispatcher)
	}

	return bundle, nil
}

// WorkerDeps holds dependencies required for creating workers
type WorkerDeps struct {
	Config   *config.Config
	Services *ServiceBundle
	Archive  *storage.LocalFileStorage
	Logger   *zap.Logger
}

// ProvideWorkers registers the background workers without starting them
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	m := worker.NewManager(deps.Logger)

	if deps.Config.Reminder.Enabled {
		m.Register(worker.NewReminderWorker(deps.Services.Notification, worker.ReminderConfig{
			Interval:  deps.Config.Reminder.Interval,
			After:     deps.Config.Reminder.After,
			BatchSize: deps.Config.Reminder.BatchSize,
		}, deps.Logger))
	}

	if deps.Archive != nil {
		m.Register(worker.NewPruneWorker(
			deps.Archive,
			deps.Config.Export.PruneInterval,
			deps.Config.Export.Retention,
			deps.Logger,
		))
	}

	return m
}
