// File: app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/config"
	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/db"
	"github.com/smartpigdefi/smartpig/handler"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/repository"
	"github.com/smartpigdefi/smartpig/router"
	"github.com/smartpigdefi/smartpig/service"
)

// App holds the wired components of a running client.
type App struct {
	Handler     http.Handler
	Session     *service.SessionService
	Deposits    *service.DepositService
	Withdrawals *service.WithdrawService
	Journal     *service.JournalService

	closers []func()
}

// New wires every layer from config.AppConfig. Background tasks stop when
// ctx is cancelled.
func New(ctx context.Context) (*App, error) {
	cfg := config.AppConfig
	a := &App{}

	store, err := a.sessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens, err := service.NewTokenService(cfg.JWT.SecretKey, cfg.JWT.TTL)
	if err != nil {
		a.Close()
		return nil, err
	}
	challenges, err := credential.NewChallengeSource()
	if err != nil {
		a.Close()
		return nil, err
	}

	bus := service.NewEventBus()
	session := service.NewSessionService(
		credential.NewSoftwareAuthenticator(cfg.Credential.Supported, nil),
		challenges,
		service.NewSolanaAccountDeriver(),
		store,
		tokens,
		bus,
		credential.RelyingParty{ID: cfg.Credential.RPID, Name: cfg.Credential.RPName},
	)

	rail := settlementRail(session)
	rates := rateSource()
	slot := service.NewPaymentSlot()

	deposits := service.NewDepositService(service.DepositConfig{
		Minimum:       decimal.NewFromFloat(cfg.Deposit.Minimum),
		FeeBps:        cfg.Deposit.FeeBps,
		Currency:      cfg.Settlement.Currency,
		PollInterval:  cfg.Deposit.PollInterval,
		DefaultExpiry: cfg.Deposit.DefaultExpiry,
	}, rail, session, slot, bus)
	withdrawals := service.NewWithdrawService(service.WithdrawConfig{
		Minimum:    decimal.NewFromFloat(cfg.Withdraw.Minimum),
		FeeBps:     cfg.Withdraw.FeeBps,
		PacePhases: cfg.Withdraw.PacePhases,
	}, rail, rates, tokens, session, slot, bus)

	session.OnLogout(deposits.Dispose)
	session.OnLogout(withdrawals.Dispose)

	var journal *service.JournalService
	if db.Enabled() {
		database, err := a.database(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		journal = service.NewJournalService(repository.NewSettlementRepository(database), bus)
		go journal.Run(ctx)
	} else {
		logger.Log.Info("No database configured; settlement journal disabled")
	}

	a.Handler = router.NewRouter(router.Handlers{
		Session:  handler.NewSessionHandler(session),
		Deposit:  handler.NewDepositHandler(deposits),
		Withdraw: handler.NewWithdrawHandler(withdrawals),
		Account: handler.NewAccountHandler(service.NewSavingsService(session, cfg.Savings.APY), journal, rates,
			handler.FeeSchedule{DepositBps: cfg.Deposit.FeeBps, WithdrawBps: cfg.Withdraw.FeeBps}),
		Events:   handler.NewEventsHandler(bus, session, cfg.Server.AllowedOrigins),
		Verifier: session,
	}, cfg.Server.AllowedOrigins)

	a.Session = session
	a.Deposits = deposits
	a.Withdrawals = withdrawals
	a.Journal = journal

	if status, err := session.Restore(ctx); err != nil {
		logger.Log.WithError(err).Warn("Could not restore previous session")
	} else if status.Authenticated() {
		logger.Log.WithField("account", status.Account.MaskedPublicKey()).Info("Previous session restored")
	}

	return a, nil
}

func (a *App) sessionStore(ctx context.Context) (repository.ISessionStore, error) {
	cfg := config.AppConfig.Session

	switch cfg.Store {
	case "memory":
		return repository.NewMemorySessionStore(), nil
	case "redis":
		rdb, err := db.ConnectRedis(ctx)
		if err != nil {
			return nil, fmt.Errorf("error connecting to redis: %w", err)
		}
		a.closers = append(a.closers, func() { closeRedis(rdb) })
		return repository.NewRedisSessionStore(rdb, cfg.RedisKey), nil
	case "file", "":
		return repository.NewFileSessionStore(cfg.FilePath, cfg.Passphrase), nil
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.Store)
}

func (a *App) database(ctx context.Context) (*sql.DB, error) {
	database, err := db.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	a.closers = append(a.closers, func() { database.Close() })

	if err := db.Migrate(db.MigrationsPath, db.ConnectionString()); err != nil {
		return nil, err
	}
	return database, nil
}

func closeRedis(rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close redis client")
	}
}

// settlementRail is the in-process demo rail unless demo mode is off.
// The HTTP rail authenticates with the live session token.
func settlementRail(session *service.SessionService) client.SettlementService {
	cfg := config.AppConfig.Settlement
	if cfg.Demo || cfg.BaseURL == "" {
		logger.Log.WithField("approval", cfg.DemoApproval).Info("Using demo settlement rail")
		return client.NewDemoSettlement(cfg.DemoApproval)
	}
	logger.Log.WithField("base_url", cfg.BaseURL).Info("Using HTTP settlement rail")
	return client.NewHTTPSettlementClient(cfg.BaseURL, cfg.AssetCode, cfg.Lang, cfg.Timeout, session.AccessToken)
}

func rateSource() client.RateSource {
	cfg := config.AppConfig
	fallback := client.NewFixedRate(cfg.Rates.Fallback)
	if !cfg.Rates.Live {
		return fallback
	}
	return client.RateWithFallback{
		Primary:  client.NewCoinGeckoClient("", cfg.Settlement.Currency),
		Fallback: fallback,
	}
}

// Close abandons active payments and releases connections.
func (a *App) Close() {
	ctx := context.Background()
	if a.Deposits != nil {
		a.Deposits.Dispose(ctx)
	}
	if a.Withdrawals != nil {
		a.Withdrawals.Dispose(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Run() {
	config.LoadConfig(".")
	logger.Init()
	logger.SetLevel(config.AppConfig.Log.Level)
	logger.Log.Info("Configuration loaded successfully")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := New(ctx)
	if err != nil {
		logger.Log.Fatalf("Failed to start Smart Pig: %v", err)
	}
	defer a.Close()

	port := config.AppConfig.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
	}
	stop()

	logger.Log.Info("Server exited properly")
}
