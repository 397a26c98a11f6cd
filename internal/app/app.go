package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Freeeeeet/tutor_booking/internal/config"
	"github.com/Freeeeeet/tutor_booking/internal/gateway"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/Freeeeeet/tutor_booking/internal/transport"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

// storage is the set of stores the services run on
type storage struct {
	tx       service.Transactor
	bookings service.BookingRepository
	tutors   service.TutorRepository
	users    service.UserRepository
	appeals  service.AppealRepository
	health   transport.HealthCheck
	close    func()
}

// App собирает все зависимости сервиса
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	storage    *storage
	dispatcher *notify.Dispatcher
	scheduler  *Scheduler
	server     *http.Server

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	st, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.storage = st
	a.closers = append(a.closers, st.close)

	notifiers, err := a.notifiers(st.users)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(logger, cfg.NotifyBuffer, notifiers...)

	params := cfg.Policy()
	refunds := service.NewRefundOrchestrator(st.tx, st.bookings, a.paymentGateway(), a.dispatcher, params.RefundClaimTTL, time.Now, logger)
	bookings := service.NewBookingService(st.tx, st.bookings, st.tutors, st.users, refunds, a.dispatcher, params, time.Now, logger)
	appeals := service.NewAppealService(st.tx, st.appeals, st.users, a.dispatcher, time.Now, logger)

	a.scheduler = NewScheduler(refunds, cfg.ReconcileInterval, cfg.ReconcileBatch, logger)

	router := transport.InitRoutes(
		transport.RouterConfig{RequestTimeout: cfg.RequestTimeout, Health: st.health},
		transport.NewBookingHandler(bookings, logger),
		transport.NewAppealHandler(appeals, logger),
		middleware.NewAuthenticator(cfg.JWTSecret),
		a.idempotency(),
		logger,
	)

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.withCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (*storage, error) {
	if a.cfg.Storage == config.StorageMemory {
		store := memory.NewStore()
		if a.cfg.DemoSeed {
			a.logDemoAccounts(SeedDemo(store))
		}
		a.logger.Warn("Using in-memory storage, data is lost on restart")

		return &storage{
			tx:       store,
			bookings: store.Bookings(),
			tutors:   store.Tutors(),
			users:    store.Users(),
			appeals:  store.Appeals(),
			close:    func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := NewMigrator(pool, a.logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &storage{
		tx:       base.NewTxManager(pool, a.logger),
		bookings: repository.NewBookingRepository(pool),
		tutors:   repository.NewTutorRepository(pool, a.logger),
		users:    repository.NewUserRepository(pool),
		appeals:  repository.NewAppealRepository(pool),
		health:   pool.Ping,
		close:    pool.Close,
	}, nil
}

func (a *App) paymentGateway() service.PaymentGateway {
	if a.cfg.GatewayURL == "" {
		a.logger.Warn("GATEWAY_URL is empty, refunds go to the sandbox gateway")
		return gateway.NewSandbox(a.logger)
	}
	return gateway.NewHTTPClient(a.cfg.GatewayURL, a.cfg.GatewayAPIKey, a.cfg.GatewayTimeout)
}

func (a *App) notifiers(users notify.UserLookup) ([]notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewLogNotifier(a.logger)}

	if a.cfg.TelegramToken != "" {
		b, err := bot.New(a.cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(b, users, a.cfg.NotifyRate, a.cfg.Location(), a.logger))
	}

	if a.cfg.RabbitMQURL != "" {
		rabbit, err := notify.DialRabbit(a.cfg.RabbitMQURL, a.cfg.RabbitMQQueue, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := rabbit.Close(); err != nil {
				a.logger.Warn("Failed to close rabbitmq channel", zap.Error(err))
			}
		})
		notifiers = append(notifiers, rabbit)
	}

	return notifiers, nil
}

func (a *App) idempotency() *middleware.Idempotency {
	if a.cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	return middleware.NewIdempotency(client, a.cfg.IdempotencyTTL, a.logger)
}

func (a *App) withCORS(h http.Handler) http.Handler {
	if len(a.cfg.CORSOrigins) == 0 {
		return h
	}

	return cors.New(cors.Options{
		AllowedOrigins: a.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.IdempotencyKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, middleware.ReplayedHeader},
		MaxAge:         600,
	}).Handler(h)
}

func (a *App) logDemoAccounts(demo DemoAccounts) {
	if a.cfg.IsProduction() {
		return
	}

	auth := middleware.NewAuthenticator(a.cfg.JWTSecret)
	for name, actor := range map[string]model.Actor{"student": demo.Student, "tutor": demo.Tutor, "admin": demo.Admin} {
		token, err := auth.Issue(actor, 30*24*time.Hour, time.Now())
		if err != nil {
			a.logger.Warn("Failed to issue demo token", zap.Error(err))
			continue
		}
		a.logger.Info("Demo account",
			zap.String("name", name),
			zap.Int64("user_id", actor.UserID),
			zap.Int64("tutor_id", demo.TutorID),
			zap.String("token", token),
		)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start(ctx, a.cfg.NotifyWorkers)
	a.scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.logger.Info("Shutting down HTTP server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err := g.Wait()

	a.scheduler.Stop()
	a.dispatcher.Close()
	a.Close()

	return err
}

// SweepRefunds runs one refund reconciliation pass without serving HTTP
func (a *App) SweepRefunds(ctx context.Context) int {
	a.dispatcher.Start(ctx, a.cfg.NotifyWorkers)
	defer a.Close()
	defer a.dispatcher.Close()

	return a.scheduler.SweepOnce(ctx)
}

// Close releases storage and broker connections
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
