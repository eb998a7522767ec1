package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"shiftwake/internal/analytics"
	"shiftwake/internal/api"
	"shiftwake/internal/calendar"
	"shiftwake/internal/circuitbreaker"
	"shiftwake/internal/config"
	"shiftwake/internal/devicesched"
	"shiftwake/internal/domain"
	"shiftwake/internal/firing"
	"shiftwake/internal/lifecycle"
	"shiftwake/internal/maintenance"
	"shiftwake/internal/metrics"
	"shiftwake/internal/recognize"
	"shiftwake/internal/recovery"
	"shiftwake/internal/registry"
	"shiftwake/internal/skip"
	"shiftwake/internal/store/postgres"
	"shiftwake/internal/store/sqlite"
	"shiftwake/internal/transport/channel"

	_ "github.com/lib/pq"
)

// storage is the union of the persistence surfaces the application wires.
// Both database drivers implement all of it.
type storage interface {
	PingContext(ctx context.Context) error

	InsertAlarm(ctx context.Context, alarm domain.AlarmInfo) error
	DeleteAlarm(ctx context.Context, id int32) error
	DeleteAllAlarms(ctx context.Context) error
	GetAlarm(ctx context.Context, id int32) (domain.AlarmInfo, error)
	ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error)
	ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error)
	CountAlarms(ctx context.Context) (int, error)

	LoadShiftConfig(ctx context.Context) (domain.ShiftConfig, error)
	SaveShiftConfig(ctx context.Context, config domain.ShiftConfig) error

	GetSkipMarker(ctx context.Context) (domain.SkipMarker, bool, error)
	SetSkipMarker(ctx context.Context, marker domain.SkipMarker) error
	ClearSkipMarker(ctx context.Context) error

	ReplaceCachedEvents(ctx context.Context, events []domain.CalendarEvent) error
	ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error)

	InsertFire(ctx context.Context, record domain.FireRecord) error
	UpdateFireOutcome(ctx context.Context, id uuid.UUID, outcome domain.FireOutcome) error
	ListRecentFires(ctx context.Context, limit int) ([]domain.FireRecord, error)
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	// Optional .env for local development; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Println("shiftwake: loaded .env")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`shiftwake - work-shift alarm scheduler

Usage:
  shiftwake <command>

Commands:
  serve      Start the alarm scheduler and fire handler
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_DRIVER           "sqlite" or "postgres" (default: "sqlite")
  DATABASE_PATH             SQLite database file (default: "shiftwake.db")
  DATABASE_URL              PostgreSQL connection string (postgres driver)
  REDIS_ADDR                Redis address for fire analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  TRIGGER_URL               Downstream trigger webhook (required)
  TRIGGER_SECRET            HMAC secret for trigger signatures
  TRIGGER_TIMEOUT           Per-attempt trigger timeout (default: "10s")

  REFRESH_SCHEDULE          Cron expression for calendar resync (default: "*/30 * * * *")
  TIMEZONE                  IANA timezone for the schedule (default: local)
  CALENDAR_IDS              Calendars to scan, comma separated (default: "primary")
  CALENDAR_ICS_URLS         ICS feeds as "id=url,id=url" pairs
  SHIFT_SEED_PATH           YAML file seeding the initial shift config

  CIRCUIT_BREAKER_THRESHOLD Consecutive trigger failures before opening (default: "5", "0" disables)
  CIRCUIT_BREAKER_COOLDOWN  Breaker cooldown (default: "2m")
  FIREBUS_BUFFER_SIZE       Fire event buffer size (default: "100")
  FIRE_DRAIN_TIMEOUT        Fire drain timeout on shutdown (default: "30s")

  RECOVERY_SETTLE_DELAY     Wait before the first recovery attempt (default: "5s")
  RECOVERY_MAX_ATTEMPTS     Bounded recovery attempts (default: "3")
  RECOVERY_ATTEMPT_DELAY    Fixed delay between attempts (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_ADDR              Metrics server address (default: ":9090")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	var store storage
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		pg := postgres.New(db)
		schemaCtx, cancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
		err = pg.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
			return exitRuntimeError
		}
		store = pg
		log.Printf("shiftwake: postgres store ready (max_open=%d, max_idle=%d)", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)

	case "sqlite":
		lite, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer lite.Close()
		store = lite
		log.Printf("shiftwake: sqlite store ready (path=%s)", cfg.DatabasePath)
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("shiftwake: metrics enabled (addr=%s, path=%s)", cfg.MetricsAddr, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("shiftwake: metrics server listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("shiftwake: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("shiftwake: METRICS_ENABLED not set; metrics disabled")
	}

	// Shift recognition and configuration registry. The registry invalidates
	// the engine's match cache after every config write.
	engine := recognize.New()
	reg := registry.New(store).WithInvalidator(engine)
	if cfg.ShiftSeedPath != "" {
		reg = reg.WithSeedFile(cfg.ShiftSeedPath)
	}

	// Fire bus connects device wake timers to the fire handler.
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewFireBus(cfg.FireBusBufferSize, busOpts...)

	device := devicesched.NewTimerScheduler(bus)

	lc := lifecycle.New(store, engine, device, reg)
	if metricsSink != nil {
		lc = lc.WithMetrics(metricsSink)
	}

	skipper := skip.New(store, store)
	if metricsSink != nil {
		skipper = skipper.WithMetrics(metricsSink)
	}

	// Fire handler delivers trigger webhooks with retry and breaker.
	fireHandler := firing.New(skipper, firing.NewHTTPTriggerSender(), store, cfg.TriggerConfig()).
		WithDrainTimeout(cfg.FireDrainTimeout)
	if metricsSink != nil {
		fireHandler = fireHandler.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		fireHandler = fireHandler.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("shiftwake: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, cfg.AnalyticsConfig())
		fireHandler = fireHandler.WithAnalytics(sink)
		log.Printf("shiftwake: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("shiftwake: REDIS_ADDR not set; analytics disabled")
	}

	// Calendar source with cached-event fallback.
	var source calendar.Source
	if urls := cfg.ICSURLMap(); len(urls) > 0 {
		source = calendar.NewICSSource(urls, &http.Client{Timeout: 30 * time.Second})
	} else {
		source = calendar.NewFakeSource()
	}
	cachingSource := calendar.NewCachingSource(source, store)

	// Periodic calendar resync.
	schedule, err := maintenance.ParseSchedule(cfg.RefreshSchedule, cfg.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid refresh schedule: %v\n", err)
		return exitInvalidConfig
	}
	worker := maintenance.NewWorker(schedule, cachingSource, lc, reg, cfg.CalendarIDList())

	// Recovery coordinator re-arms timers after process or host restarts.
	recoverer := recovery.New(cfg.RecoveryConfig(), store, lc, store, cachingSource, worker)
	if metricsSink != nil {
		recoverer = recoverer.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(store, lc, worker, skipper, reg).
		WithRecovery(recoverer).
		WithHealthChecker(store)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("shiftwake: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("shiftwake: http server error: %v", err)
		}
	}()

	// Separate contexts per component enable ordered shutdown.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	firingCtx, cancelFiring := context.WithCancel(context.Background())
	recoveryCtx, cancelRecovery := context.WithCancel(context.Background())

	var firingWg sync.WaitGroup
	firingWg.Add(1)
	go func() {
		defer firingWg.Done()
		fireHandler.Run(firingCtx, bus.Channel())
	}()

	worker.Start(workerCtx)

	// Process start doubles as the boot signal: restore whatever alarm state
	// survived in storage before the first scheduled resync.
	var recoveryWg sync.WaitGroup
	recoveryWg.Add(1)
	go func() {
		defer recoveryWg.Done()
		if err := recoverer.HandleSignal(recoveryCtx, domain.ReasonBootCompleted); err != nil {
			log.Printf("shiftwake: boot recovery: %v", err)
		}
	}()

	log.Printf("shiftwake: started (schedule=%q, http=%s)", cfg.RefreshSchedule, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("shiftwake: received signal %v, shutting down", received)

	// Phase 1: stop recovery and the maintenance worker (no new recomputes)
	cancelRecovery()
	recoveryWg.Wait()
	log.Println("shiftwake: stopping maintenance worker...")
	cancelWorker()
	worker.Stop()
	log.Println("shiftwake: maintenance worker stopped")

	// Phase 2: disarm device timers (no new fire events)
	device.CancelAll()
	log.Println("shiftwake: device timers cancelled")

	// Phase 3: stop the fire handler (drains buffered fires before returning)
	log.Println("shiftwake: stopping fire handler (draining fires)...")
	cancelFiring()
	firingWg.Wait()
	log.Println("shiftwake: fire handler stopped")

	// Phase 4: stop HTTP server with graceful shutdown
	log.Println("shiftwake: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("shiftwake: http server shutdown error: %v", err)
	}
	log.Println("shiftwake: http server stopped")

	// Phase 5: stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("shiftwake: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("shiftwake: metrics server shutdown error: %v", err)
		}
		log.Println("shiftwake: metrics server stopped")
	}

	log.Println("shiftwake: stopped")
	return exitSuccess
}

// logConfigWarnings surfaces risky-but-valid configurations at startup.
func logConfigWarnings(cfg *config.Config) {
	if cfg.CalendarICSURLs == "" {
		log.Println("WARNING: CALENDAR_ICS_URLS not set; using an empty in-memory calendar source. " +
			"No shift events will be discovered until feeds are configured.")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("WARNING: CIRCUIT_BREAKER_THRESHOLD=0 disables the trigger circuit breaker. " +
			"A dead trigger endpoint will absorb the full retry schedule on every fire.")
	}
	if cfg.TriggerSecret == "" {
		log.Println("WARNING: TRIGGER_SECRET not set; trigger webhooks will be unsigned.")
	}
	if !cfg.MetricsEnabled {
		log.Println("INFO: METRICS_ENABLED not set; running without Prometheus metrics.")
	}
	if cfg.DatabaseDriver == "sqlite" {
		log.Println("INFO: DATABASE_DRIVER=sqlite is single-writer; suitable for one instance only.")
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("shiftwake version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
