package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/premiummeter/premiummeter/src/api"
	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/dbutils"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/query"
	"github.com/premiummeter/premiummeter/src/scheduler"
	"github.com/premiummeter/premiummeter/src/scraper"
	"github.com/premiummeter/premiummeter/src/utils"
)

func main() {
	run()
}

// setupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func setupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	// Each registered cleanup will be invoked once.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	// handleErr calls shutdown for cleanup and makes sure that all errors are returned.
	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "premiummeter")))

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)

	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Fatalf("runtime.Start: %v", err)
	}

	return
}

// applySeedConfig loads the optional boot configuration. Schedule values only
// land on a fresh database so runtime edits survive restarts; watchlist
// tickers are added whenever they are missing.
func applySeedConfig(db *gorm.DB, dbService models.IDatabaseService, configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("applySeedConfig: failed to read %s: %w", configPath, err)
	}

	var cfg models.SeedConfigYAML
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("applySeedConfig: failed to unmarshal %s: %w", configPath, err)
	}

	var scheduleRows int64
	if err := db.Model(&models.ScraperSchedule{}).Count(&scheduleRows).Error; err != nil {
		return fmt.Errorf("applySeedConfig: failed to count schedule rows: %w", err)
	}

	schedule, err := dbService.FetchSchedule()
	if err != nil {
		return fmt.Errorf("applySeedConfig: failed to fetch schedule: %w", err)
	}

	if scheduleRows == 0 && cfg.Schedule != nil {
		if err := cfg.Schedule.ToConfigRequest().Apply(schedule); err != nil {
			return fmt.Errorf("applySeedConfig: invalid schedule seed: %w", err)
		}

		if err := dbService.SaveSchedule(schedule); err != nil {
			return fmt.Errorf("applySeedConfig: failed to save seeded schedule: %w", err)
		}

		log.Infof("applySeedConfig: seeded schedule from %s", configPath)
	}

	for _, seed := range cfg.Watchlist {
		ticker := models.NewStockSymbol(seed.Ticker)
		if err := ticker.Validate(); err != nil {
			return fmt.Errorf("applySeedConfig: invalid watchlist ticker %q: %w", seed.Ticker, err)
		}

		stock := &models.Stock{
			Ticker:      ticker,
			CompanyName: seed.CompanyName,
			Status:      models.StockStatusActive,
		}

		entry := &models.WatchlistEntry{
			MonitoringStatus: models.MonitoringActive,
			Notes:            seed.Notes,
		}

		if err := dbService.SaveStock(stock, entry); err != nil {
			if errors.Is(err, data.ErrDuplicateStock) {
				log.Debugf("applySeedConfig: %s already on watchlist, skipping", ticker)
				continue
			}

			return fmt.Errorf("applySeedConfig: failed to add %s: %w", ticker, err)
		}

		log.Infof("applySeedConfig: added %s to the watchlist", ticker)
	}

	return nil
}

var db *gorm.DB

func run() {
	projectsDir, err := utils.GetEnv("PROJECTS_DIR")
	if err != nil {
		log.Fatalf("PROJECTS_DIR not set: %v", err)
	}

	goEnv, err := utils.GetEnv("GO_ENV")
	if goEnv == "" {
		log.Fatalf("GO_ENV not set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	if err := utils.InitEnvironmentVariables(projectsDir, goEnv); err != nil {
		log.Panic(err)
	}

	// set up logger
	log.SetOutput(os.Stdout)

	log.Infof("Log level set to %v", log.GetLevel())

	stockQuotesURL, err := utils.GetEnv("TRADIER_STOCK_QUOTES_URL")
	if err != nil {
		log.Fatalf("$TRADIER_STOCK_QUOTES_URL not set: %v", err)
	}

	optionsExpirationURL, err := utils.GetEnv("TRADIER_OPTION_EXPIRATIONS_URL")
	if err != nil {
		log.Fatalf("$TRADIER_OPTION_EXPIRATIONS_URL not set: %v", err)
	}

	optionChainURL, err := utils.GetEnv("TRADIER_OPTION_CHAIN_URL")
	if err != nil {
		log.Fatalf("$TRADIER_OPTION_CHAIN_URL not set: %v", err)
	}

	calendarURL, err := utils.GetEnv("TRADIER_MARKET_CALENDAR_URL")
	if err != nil {
		log.Fatalf("$TRADIER_MARKET_CALENDAR_URL not set: %v", err)
	}

	tradierBearerToken, err := utils.GetEnv("TRADIER_BEARER_TOKEN")
	if err != nil {
		log.Fatalf("$TRADIER_BEARER_TOKEN not set: %v", err)
	}

	polygonApiKey, err := utils.GetEnv("POLYGON_API_KEY")
	if err != nil {
		log.Fatalf("$POLYGON_API_KEY not set: %v", err)
	}

	fmpBaseURL, err := utils.GetEnv("FMP_BASE_URL")
	if err != nil {
		log.Fatalf("$FMP_BASE_URL not set: %v", err)
	}

	fmpApiKey, err := utils.GetEnv("FMP_API_KEY")
	if err != nil {
		log.Fatalf("$FMP_API_KEY not set: %v", err)
	}

	postgresHost, err := utils.GetEnv("POSTGRES_HOST")
	if err != nil {
		log.Fatalf("$POSTGRES_HOST not set: %v", err)
	}

	postgresPort, err := utils.GetEnv("POSTGRES_PORT")
	if err != nil {
		log.Fatalf("$POSTGRES_PORT not set: %v", err)
	}

	postgresUser, err := utils.GetEnv("POSTGRES_USER")
	if err != nil {
		log.Fatalf("$POSTGRES_USER not set: %v", err)
	}

	postgresPassword, err := utils.GetEnv("POSTGRES_PASSWORD")
	if err != nil {
		log.Fatalf("$POSTGRES_PASSWORD not set: %v", err)
	}

	postgresDb, err := utils.GetEnv("POSTGRES_DB")
	if err != nil {
		log.Fatalf("$POSTGRES_DB not set: %v", err)
	}

	// Set up Telemetry
	log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
		log.InfoLevel,
	)))

	// Set up OpenTelemetry.
	otelShutdown, err := setupOTelSDK(ctx)
	if err != nil {
		log.Fatalf("failed to setup otel sdk: %v", err)
	}

	// Handle shutdown properly so nothing leaks.
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Errorf("failed to shutdown otel sdk: %v", err)
		}
	}()

	// Setup postgres
	if db, err = dbutils.InitPostgres(postgresHost, postgresPort, postgresUser, postgresPassword, postgresDb); err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	dbService := data.NewDatabaseService(db)

	// Load seed config
	seedConfigFile, _ := utils.GetEnv("PREMIUMMETER_CONFIG_FILE")
	if seedConfigFile != "" {
		seedConfigInDir := path.Join(projectsDir, "premiummeter", "src", seedConfigFile)
		if err := applySeedConfig(db, dbService, seedConfigInDir); err != nil {
			log.Fatalf("failed to apply seed config: %v", err)
		}
	}

	// Setup router
	port, err := utils.GetEnv("PORT")
	if err != nil {
		log.Fatalf("$PORT not set: %v", err)
	}

	router := mux.NewRouter()

	// Register pprof handlers
	pprofRouter := router.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.HandleFunc("/", http.HandlerFunc(pprof.Index))
	pprofRouter.HandleFunc("/cmdline", http.HandlerFunc(pprof.Cmdline))
	pprofRouter.HandleFunc("/profile", http.HandlerFunc(pprof.Profile))
	pprofRouter.HandleFunc("/symbol", http.HandlerFunc(pprof.Symbol))
	pprofRouter.HandleFunc("/trace", http.HandlerFunc(pprof.Trace))
	pprofRouter.Handle("/allocs", pprof.Handler("allocs"))
	pprofRouter.Handle("/block", pprof.Handler("block"))
	pprofRouter.Handle("/goroutine", pprof.Handler("goroutine"))
	pprofRouter.Handle("/heap", pprof.Handler("heap"))
	pprofRouter.Handle("/mutex", pprof.Handler("mutex"))
	pprofRouter.Handle("/threadcreate", pprof.Handler("threadcreate"))

	// Setup market data providers, primary first
	tradierClient := marketdata.NewTradierClient(stockQuotesURL, optionsExpirationURL, optionChainURL, calendarURL, tradierBearerToken)
	polygonClient := marketdata.NewPolygonClient(polygonApiKey)
	fmpClient := marketdata.NewFMPClient(fmpBaseURL, fmpApiKey)

	priceRouter := marketdata.NewPriceRouter(tradierClient, polygonClient, fmpClient)

	// Setup collection pipeline
	collector := scraper.New(dbService, priceRouter, tradierClient, scraper.NewProgressTracker())

	schedulerWorker := scheduler.New(&wg, dbService, collector, scraper.NewExpiryMarker(dbService), tradierClient)
	if err := schedulerWorker.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler worker: %v", err)
	}

	// Setup query + display services
	queryService := query.NewService(dbService)
	displayService := marketdata.NewDisplayPriceService(priceRouter, dbService)

	api.SetupHandler(router, dbService, schedulerWorker, collector, queryService, displayService)

	// Setup web server
	srv := &http.Server{
		Handler: router,
		Addr:    fmt.Sprintf(":%s", port),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start web server
	go func() {
		log.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil {
			if err.Error() != "http: Server closed" {
				log.Fatalf("failed to start server: %v", err)
			}
		}
	}()

	// Create channel for shutdown signals.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)

	log.Info("Main: init complete")

	// Block here until program is shut down
	<-stop

	// Shut down the web server so no new runs can be triggered
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to shutdown server: %v", err)
	}

	// Stop the scheduler and wait for any in-flight run to finish
	cancel()

	wg.Wait()

	log.Info("Main: gracefully stopped!")
}
