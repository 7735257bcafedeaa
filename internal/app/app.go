package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"taskflow/internal/auth"
	"taskflow/internal/config"
	"taskflow/internal/credential"
	"taskflow/internal/focus"
	"taskflow/internal/handlers"
	"taskflow/internal/localstore"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"
	"taskflow/internal/parser"
	repo "taskflow/internal/repository"
	"taskflow/internal/repository/inmemory"
	"taskflow/internal/repository/postgres"
	"taskflow/internal/service"
	"taskflow/internal/syncer"
	"taskflow/internal/worker"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const loadTimeout = 30 * time.Second

type App struct {
	config *config.Config
	clock  clockwork.Clock
	server *http.Server
	router chi.Router

	remote  repo.Remote
	local   localstore.Store
	session *auth.Session
	manager *syncer.Manager
	tracker *service.TimeTracker
	tasks   *service.TaskStore
	focus   *focus.Tracker
	parser  parser.Parser
	worker  *worker.ConnectivityWorker

	shutdowns    []func() error // выполняются в обратном порядке
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		clock:     clockwork.NewRealClock(),
		shutdowns: make([]func() error, 0),
	}
}

// WithClock подменяет часы (тесты)
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	return a
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"хранилище", a.initRemote},
		{"локальное хранилище", a.initLocal},
		{"сервисы", a.initServices},
		{"парсер", a.initParser},
		{"маршруты", a.initRouter},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			_ = a.Shutdown()
			return nil, fmt.Errorf("инициализация (%s): %w", step.name, err)
		}
	}

	if a.config.Auth.UserID != "" {
		userID, err := uuid.Parse(a.config.Auth.UserID)
		if err != nil {
			_ = a.Shutdown()
			return nil, fmt.Errorf("auth.user_id: %w", err)
		}
		a.session.SignIn(userID)
	}

	logger.Info("App: Инициализация завершена",
		zap.String("repository", a.config.Repository.Type),
		zap.String("local_store", a.config.LocalStore.Type))
	return a, nil
}

func (a *App) initRemote(ctx context.Context) error {
	switch a.config.Repository.Type {
	case "postgres":
		if a.config.Database.AutoMigrate {
			if err := postgres.Migrate(a.config.Database.URL); err != nil {
				return err
			}
		}
		storage, err := postgres.New(ctx, a.config.Database.URL, postgres.PoolConfig{
			MaxConns:    int32(a.config.Database.MaxConnections),
			MinConns:    int32(a.config.Database.MinConnections),
			IdleTimeout: a.config.Database.IdleTimeout,
		})
		if err != nil {
			return err
		}
		a.remote = storage
		a.shutdowns = append(a.shutdowns, func() error {
			storage.Close()
			return nil
		})
	default:
		a.remote = inmemory.NewStorage()
	}
	return nil
}

func (a *App) initLocal(_ context.Context) error {
	switch a.config.LocalStore.Type {
	case "sqlite":
		store, err := localstore.NewSQLite(a.config.LocalStore.Path)
		if err != nil {
			return err
		}
		a.local = store
		a.shutdowns = append(a.shutdowns, store.Close)
	default:
		a.local = localstore.NewMemory()
	}
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	a.session = auth.NewSession()

	a.manager = syncer.NewManager(a.remote, a.local, a.clock)
	syncCfg := a.config.Sync
	err := a.manager.Initialize(ctx, syncer.Options{
		AutoSync:       syncCfg.AutoSync,
		Interval:       syncCfg.Interval,
		RetryAttempts:  syncCfg.RetryAttempts,
		RetryDelay:     syncCfg.RetryDelay,
		OfflineMode:    syncCfg.OfflineMode,
		RequestTimeout: syncCfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	a.shutdowns = append(a.shutdowns, a.manager.Close)

	a.tracker = service.NewTimeTracker(a.remote, a.session, a.local, a.manager, a.clock, syncCfg.RequestTimeout)
	a.tasks = service.NewTaskStore(a.remote, a.session, a.clock, service.TaskStoreConfig{
		GracePeriod:    a.config.Tasks.GracePeriod,
		RequestTimeout: a.config.Tasks.RequestTimeout,
	})
	a.shutdowns = append(a.shutdowns, func() error {
		a.tracker.Close()
		a.tasks.Close()
		return nil
	})

	a.focus = focus.NewTracker(a.local, a.tracker, a.clock)
	if err := a.focus.Load(ctx); err != nil {
		logger.Warn("App: Состояние фокуса не загружено", zap.Error(err))
	}

	a.session.OnSignIn(a.loadUserData)
	a.session.OnSignOut(a.resetUserData)

	if a.config.Connectivity.Enabled && !syncCfg.OfflineMode {
		a.worker = worker.NewConnectivityWorker(a.remote, a.manager, a.clock,
			&a.config.Connectivity.Interval, &a.config.Connectivity.Timeout)
	}
	return nil
}

// loadUserData подтягивает задачи и историю нового пользователя и
// восстанавливает открытую сессию после перезапуска
func (a *App) loadUserData(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := a.tasks.Load(ctx); err != nil {
		logger.Warn("App: Задачи не загружены", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if err := a.tracker.LoadHistory(ctx); err != nil {
		logger.Warn("App: История сессий не загружена", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if err := a.tracker.Rehydrate(ctx); err != nil {
		logger.Warn("App: Открытая сессия не восстановлена", zap.Error(err))
	}
}

// resetUserData забывает состояние вышедшего пользователя. Открытая сессия
// остаётся в локальном хранилище и восстановится только для него же.
func (a *App) resetUserData() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Sync.RequestTimeout)
	defer cancel()

	a.tracker.Reset(ctx)
	a.tasks.Reset(ctx)
}

func (a *App) initParser(_ context.Context) error {
	var keys parser.KeySource
	store, err := credential.Open(a.config.Parser.KeyringDir)
	if err != nil {
		logger.Warn("App: Keyring недоступен, ключ парсера только из окружения", zap.Error(err))
	} else {
		keys = store
	}

	a.parser = parser.New(parser.Config{
		BaseURL: a.config.Parser.BaseURL,
		Model:   a.config.Parser.Model,
		APIKey:  a.config.Parser.APIKey,
		Timeout: a.config.Parser.Timeout,
	}, keys)
	return nil
}

func (a *App) initRouter(_ context.Context) error {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(middleware.Logging)
	r.Use(middleware.Timeout(a.config.Server.HandlerTimeout))
	r.Use(middleware.RateLimit(a.config.Server.RateLimit))

	handlers.NewTaskHandler(a.tasks, a.tracker, a.parser).Routes(r)
	handlers.NewTrackingHandler(a.tracker, a.manager, a.tasks, a.clock).Routes(r)
	handlers.NewFocusHandler(a.focus).Routes(r)
	handlers.NewSystemHandler(a.session, a.remote).Routes(r)
	a.router = r

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      a.Handler(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}
	return nil
}

// Handler - корневой обработчик с трассировкой запросов
func (a *App) Handler() http.Handler {
	return otelhttp.NewHandler(a.router, "taskflow")
}

// Run обслуживает запросы до отмены ctx или ошибки сервера, затем
// выполняет graceful shutdown
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	serveErr := make(chan error, 1)

	if a.worker != nil {
		wg.Go(func() { a.worker.Start(ctx) })
	}
	wg.Go(func() {
		logger.Info("App: Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("App: Получен сигнал остановки")
	case runErr = <-serveErr:
		logger.Error("App: Сервер остановился с ошибкой", runErr)
	}

	cancel()
	err := a.Shutdown()
	wg.Wait()
	return multierr.Append(runErr, err)
}

// Shutdown останавливает сервер и освобождает ресурсы. Повторные вызовы
// возвращают результат первого.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		var err error
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
			err = multierr.Append(err, a.server.Shutdown(ctx))
			cancel()
		}
		for i := len(a.shutdowns) - 1; i >= 0; i-- {
			err = multierr.Append(err, a.shutdowns[i]())
		}
		if err != nil {
			logger.Error("App: Ошибки при остановке", err)
		} else {
			logger.Info("App: Остановлено")
		}
		logger.Sync()
		a.shutdownErr = err
	})
	return a.shutdownErr
}
