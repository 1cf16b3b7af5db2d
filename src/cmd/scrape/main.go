package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/dbutils"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/scraper"
	"github.com/premiummeter/premiummeter/src/utils"
)

type RunArgs struct {
	GoEnv   string
	DryRun  bool
	Tickers []string
}

var rootCmd = &cobra.Command{
	Use:   "main",
	Short: "Run one option premium collection pass over the watchlist",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			log.Fatalf("error getting dry-run: %v", err)
		}

		tickers, err := cmd.Flags().GetStringSlice("tickers")
		if err != nil {
			log.Fatalf("error getting tickers: %v", err)
		}

		if err := run(RunArgs{
			GoEnv:   goEnv,
			DryRun:  dryRun,
			Tickers: tickers,
		}); err != nil {
			log.Fatalf("error running command: %v", err)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(new(string), "go-env", "development", "The go environment to run the command in.")
	rootCmd.PersistentFlags().Bool("dry-run", false, "Collect against an in-memory store instead of postgres.")
	rootCmd.PersistentFlags().StringSlice("tickers", nil, "Tickers to collect in dry-run mode, e.g. --tickers AAPL,COIN.")

	cobra.CheckErr(rootCmd.Execute())
}

func setupDryRunStore(tickers []string) (models.IDatabaseService, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("dry-run requires at least one ticker via --tickers")
	}

	db := data.NewInMemoryDatabaseService()

	for _, raw := range tickers {
		ticker := models.NewStockSymbol(raw)
		if err := ticker.Validate(); err != nil {
			return nil, fmt.Errorf("invalid ticker %q: %w", raw, err)
		}

		stock := &models.Stock{
			Ticker: ticker,
			Status: models.StockStatusActive,
		}

		entry := &models.WatchlistEntry{
			MonitoringStatus: models.MonitoringActive,
		}

		if err := db.SaveStock(stock, entry); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", ticker, err)
		}
	}

	return db, nil
}

func run(args RunArgs) error {
	projectsDir := os.Getenv("PROJECTS_DIR")
	if projectsDir == "" {
		return fmt.Errorf("missing PROJECTS_DIR environment variable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := utils.InitEnvironmentVariables(projectsDir, args.GoEnv); err != nil {
		return fmt.Errorf("error initializing environment variables: %v", err)
	}

	stockQuotesURL := os.Getenv("TRADIER_STOCK_QUOTES_URL")
	optionsExpirationURL := os.Getenv("TRADIER_OPTION_EXPIRATIONS_URL")
	optionChainURL := os.Getenv("TRADIER_OPTION_CHAIN_URL")
	calendarURL := os.Getenv("TRADIER_MARKET_CALENDAR_URL")
	tradierBearerToken := os.Getenv("TRADIER_BEARER_TOKEN")
	if stockQuotesURL == "" || optionsExpirationURL == "" || optionChainURL == "" || tradierBearerToken == "" {
		return fmt.Errorf("missing tradier environment variables")
	}

	var dbService models.IDatabaseService

	if args.DryRun {
		store, err := setupDryRunStore(args.Tickers)
		if err != nil {
			return err
		}

		dbService = store

		log.Infof("dry-run: collecting %d tickers into an in-memory store", len(args.Tickers))
	} else {
		postgresURL := os.Getenv("POSTGRES_URL")
		if postgresURL == "" {
			return fmt.Errorf("missing POSTGRES_URL environment variable")
		}

		db, err := dbutils.InitPostgresWithUrl(postgresURL)
		if err != nil {
			return fmt.Errorf("error initializing postgres: %v", err)
		}

		dbService = data.NewDatabaseService(db)
	}

	tradierClient := marketdata.NewTradierClient(stockQuotesURL, optionsExpirationURL, optionChainURL, calendarURL, tradierBearerToken)

	sources := []marketdata.PriceSource{tradierClient}

	if polygonApiKey := os.Getenv("POLYGON_API_KEY"); polygonApiKey != "" {
		sources = append(sources, marketdata.NewPolygonClient(polygonApiKey))
	}

	if fmpApiKey := os.Getenv("FMP_API_KEY"); fmpApiKey != "" {
		fmpBaseURL := os.Getenv("FMP_BASE_URL")
		if fmpBaseURL == "" {
			return fmt.Errorf("FMP_API_KEY set without FMP_BASE_URL")
		}

		sources = append(sources, marketdata.NewFMPClient(fmpBaseURL, fmpApiKey))
	}

	priceRouter := marketdata.NewPriceRouter(sources...)

	collector := scraper.New(dbService, priceRouter, tradierClient, scraper.NewProgressTracker())

	metrics, err := collector.Run(ctx)
	if err != nil {
		return fmt.Errorf("collection run failed: %v", err)
	}

	fmt.Println(metrics.String())

	return nil
}
