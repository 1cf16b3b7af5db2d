package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/dbutils"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/utils"
)

type WatchlistRowDTO struct {
	Ticker      string `csv:"ticker"`
	CompanyName string `csv:"company_name"`
	Notes       string `csv:"notes"`
}

type RunArgs struct {
	GoEnv string
	File  string
}

var rootCmd = &cobra.Command{
	Use:   "main",
	Short: "Import watchlist entries from a csv file",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		file, err := cmd.Flags().GetString("file")
		if err != nil {
			log.Fatalf("error getting file: %v", err)
		}

		if err := run(RunArgs{
			GoEnv: goEnv,
			File:  file,
		}); err != nil {
			log.Fatalf("error running command: %v", err)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(new(string), "go-env", "development", "The go environment to run the command in.")
	rootCmd.PersistentFlags().String("file", "", "Path to the csv file with ticker, company_name and notes columns.")

	rootCmd.MarkFlagRequired("file")

	cobra.CheckErr(rootCmd.Execute())
}

func run(args RunArgs) error {
	projectsDir := os.Getenv("PROJECTS_DIR")
	if projectsDir == "" {
		return fmt.Errorf("missing PROJECTS_DIR environment variable")
	}

	if err := utils.InitEnvironmentVariables(projectsDir, args.GoEnv); err != nil {
		return fmt.Errorf("error initializing environment variables: %v", err)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		return fmt.Errorf("missing POSTGRES_URL environment variable")
	}

	db, err := dbutils.InitPostgresWithUrl(postgresURL)
	if err != nil {
		return fmt.Errorf("error initializing postgres: %v", err)
	}

	dbService := data.NewDatabaseService(db)

	f, err := os.Open(args.File)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}

	defer f.Close()

	var rows []*WatchlistRowDTO
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return fmt.Errorf("error unmarshalling file: %v", err)
	}

	var added, skipped int

	for _, row := range rows {
		ticker := models.NewStockSymbol(row.Ticker)
		if err := ticker.Validate(); err != nil {
			return fmt.Errorf("invalid ticker %q: %w", row.Ticker, err)
		}

		stock := &models.Stock{
			Ticker:      ticker,
			CompanyName: row.CompanyName,
			Status:      models.StockStatusActive,
		}

		entry := &models.WatchlistEntry{
			MonitoringStatus: models.MonitoringActive,
			Notes:            row.Notes,
		}

		if err := dbService.SaveStock(stock, entry); err != nil {
			if errors.Is(err, data.ErrDuplicateStock) {
				log.Warnf("%s already on watchlist, skipping", ticker)
				skipped++
				continue
			}

			return fmt.Errorf("failed to add %s: %w", ticker, err)
		}

		log.Infof("added %s to the watchlist", ticker)
		added++
	}

	log.Infof("imported %d of %d rows (%d skipped)", added, len(rows), skipped)

	return nil
}
