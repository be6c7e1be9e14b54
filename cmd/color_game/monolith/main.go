package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frankieli/color_wager/internal/config"
	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	colorgameGMSMachine "github.com/frankieli/color_wager/internal/modules/color_game/gms/machine"
	colorgameGSHttp "github.com/frankieli/color_wager/internal/modules/color_game/gs/adapter/http"
	colorgameGSLocal "github.com/frankieli/color_wager/internal/modules/color_game/gs/adapter/local"
	colorgameGSDB "github.com/frankieli/color_wager/internal/modules/color_game/gs/repository/db"
	colorgameGSMemory "github.com/frankieli/color_wager/internal/modules/color_game/gs/repository/memory"
	colorgameGSRedis "github.com/frankieli/color_wager/internal/modules/color_game/gs/repository/redis"
	colorgameGSUseCase "github.com/frankieli/color_wager/internal/modules/color_game/gs/usecase"
	gatewayHttp "github.com/frankieli/color_wager/internal/modules/gateway/adapter/http"
	gatewayAdapter "github.com/frankieli/color_wager/internal/modules/gateway/adapter/local"
	"github.com/frankieli/color_wager/internal/modules/gateway/ws"
	walletModule "github.com/frankieli/color_wager/internal/modules/wallet"
	"github.com/frankieli/color_wager/pkg/auth"
	"github.com/frankieli/color_wager/pkg/logger"
	"github.com/frankieli/color_wager/pkg/metrics"
)

func main() {
	pprofPort := flag.String("pprof-port", "", "Port to run pprof server on (e.g., 6060)")
	background := flag.Bool("d", false, "Run in background mode (disable console logging)")
	flag.Parse()

	// 1. Load Config
	cfg := config.LoadMonolithConfig()
	game := cfg.ColorGame

	if cfg.Log.File != "" {
		logger.InitWithFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format, cfg.Log.Console && !*background)
	} else {
		logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	defer logger.Flush()

	if *pprofPort != "" {
		go func() {
			addr := "localhost:" + *pprofPort
			logger.InfoGlobal().Str("addr", addr).Msg("📈 Starting pprof server")
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.ErrorGlobal().Err(err).Msg("Failed to start pprof server")
			}
		}()
	}

	logger.InfoGlobal().Msg("🎮 Starting Color Wager Monolith...")

	if err := domain.SetWagerNode(game.Settings.SnowflakeNode); err != nil {
		logger.FatalGlobal().Err(err).Msg("Invalid snowflake node")
	}

	// 2. Initialize Infrastructure
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gameMetrics := metrics.New(reg)

	var archives []domain.RoundArchive
	var healthChecks []metrics.HealthFunc

	db, err := openArchiveDB(game.Database)
	if err != nil {
		logger.FatalGlobal().Err(err).Str("type", game.Database.Type).Msg("Failed to connect to database")
	}
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			logger.FatalGlobal().Err(err).Msg("Failed to get database instance")
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
		defer sqlDB.Close()

		archive := colorgameGSDB.NewArchive(db)
		if err := archive.Migrate(context.Background()); err != nil {
			logger.FatalGlobal().Err(err).Msg("Failed to migrate archive tables")
		}
		archives = append(archives, archive)
		healthChecks = append(healthChecks, sqlDB.PingContext)
		logger.InfoGlobal().Str("type", game.Database.Type).Msg("✅ Round archive ready")
	}

	var mirror *colorgameGSRedis.HistoryMirror
	if game.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     game.Redis.Addr(),
			Password: game.Redis.Password,
			DB:       game.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.FatalGlobal().Err(err).Str("addr", game.Redis.Addr()).Msg("Failed to connect to redis")
		}
		mirror = colorgameGSRedis.NewHistoryMirror(rdb, game.Settings.HistorySize)
		archives = append(archives, mirror)
		healthChecks = append(healthChecks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.InfoGlobal().Str("addr", game.Redis.Addr()).Msg("✅ Redis history mirror ready")
	}

	// 3. Initialize Modules
	balances := walletModule.NewStore()
	for id := int64(1); id <= int64(cfg.Gateway.SeedPlayers); id++ {
		if _, err := balances.SetBalance(context.Background(), id, cfg.Gateway.SeedPlayerBalance); err != nil {
			logger.FatalGlobal().Err(err).Msg("Failed to seed players")
		}
	}
	logger.InfoGlobal().Int("seeded_players", cfg.Gateway.SeedPlayers).Msg("✅ Wallet initialized")

	ledger := colorgameGSMemory.NewBetLedger()
	overrides := colorgameGSUseCase.NewOverrideStore()
	history := colorgameGSUseCase.NewHistory(game.Settings.HistorySize)
	payouts := colorgameGSUseCase.Payouts{
		ColorPercent:  game.Settings.ColorPayout,
		NumberPercent: game.Settings.NumberPayout,
	}

	engine := colorgameGSUseCase.NewSettlementEngine(ledger, balances, overrides, history, payouts,
		colorgameGSUseCase.WithSettlementMetrics(gameMetrics))
	scheduler := colorgameGMSMachine.NewScheduler(engine,
		colorgameGMSMachine.WithLockThreshold(game.Settings.LockThreshold),
		colorgameGMSMachine.WithTickInterval(game.Settings.TickInterval),
		colorgameGMSMachine.WithMetrics(gameMetrics),
	)
	engine.BindRounds(scheduler)

	wagerUC := colorgameGSUseCase.NewWagerUseCase(scheduler, ledger, balances, history, game.Settings.MinBet, gameMetrics)
	operatorUC := colorgameGSUseCase.NewOperatorUseCase(scheduler, ledger, overrides, balances)
	logger.InfoGlobal().Msg("✅ Color Game ready")

	// Gateway
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsManager := ws.NewManager()
	go wsManager.Run(ctx)

	scheduler.RegisterEventHandler(gatewayAdapter.NewBroadcaster(wsManager).HandleEvent)
	var publisher colorgameGSLocal.EventPublisher
	if mirror != nil {
		publisher = mirror
	}
	scheduler.RegisterEventHandler(colorgameGSLocal.NewRoundRecorder(publisher, archives...).HandleEvent)

	authenticator := auth.NewAuthenticator(cfg.Gateway.JWT.Secret, cfg.Gateway.JWT.Duration)
	wsHandler := gatewayHttp.NewHandler(wagerUC, wsManager, authenticator)
	apiHandler := colorgameGSHttp.NewHandler(wagerUC, operatorUC, authenticator)

	// 4. Setup HTTP Servers
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware())
	apiHandler.RegisterRoutes(router.Group("/api"))
	router.GET("/ws", func(c *gin.Context) {
		wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	apiSrv := &http.Server{
		Addr:    ":" + game.Server.Port,
		Handler: router,
	}
	metricsSrv := metrics.NewServer(game.Server.MetricsPort, reg, func(ctx context.Context) error {
		for _, m := range domain.Modes {
			if err := scheduler.Halted(m); err != nil {
				return fmt.Errorf("mode %s halted: %w", m, err)
			}
		}
		for _, check := range healthChecks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	// 5. Start
	schedulerDone := make(chan error, 1)
	go func() { schedulerDone <- scheduler.Run(ctx) }()
	go pruneLedger(ctx, ledger, game.Settings.LedgerRetention)

	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalGlobal().Err(err).Msg("API server failed")
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalGlobal().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.InfoGlobal().
		Str("api_port", game.Server.Port).
		Str("metrics_port", game.Server.MetricsPort).
		Str("ws_url", fmt.Sprintf("ws://localhost:%s/ws?token=YOUR_TOKEN", game.Server.Port)).
		Msg("🚀 Color Wager Monolith running")

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoGlobal().Msg("🛑 Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorGlobal().Err(err).Msg("API server forced to shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorGlobal().Err(err).Msg("Metrics server forced to shutdown")
	}

	// A tick in progress finishes its settlement before Run returns
	stop()
	if err := <-schedulerDone; err != nil {
		logger.ErrorGlobal().Err(err).Msg("Scheduler stopped with error")
	}

	logger.InfoGlobal().Msg("👋 Server exited properly")
}

// openArchiveDB returns nil when archiving is disabled
func openArchiveDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.NewGormLogger()}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.Path), gormCfg)
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// pruneLedger drops settled wagers from memory once they are older than
// retention. Archived copies stay in the database.
func pruneLedger(ctx context.Context, ledger *colorgameGSMemory.BetLedger, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := ledger.PruneSettledBefore(ctx, now.Add(-retention)); n > 0 {
				logger.Info(ctx).Int("pruned", n).Msg("Pruned settled wagers")
			}
		}
	}
}
