package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/dbutils"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/query"
	"github.com/premiummeter/premiummeter/src/utils"
)

type RunArgs struct {
	GoEnv   string
	Request *models.PremiumQueryRequest
}

var rootCmd = &cobra.Command{
	Use:   "main",
	Short: "Aggregate collected option premiums per strike",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		req, err := buildRequest(cmd)
		if err != nil {
			log.Fatalf("error building request: %v", err)
		}

		if err := run(RunArgs{
			GoEnv:   goEnv,
			Request: req,
		}); err != nil {
			log.Fatalf("error running command: %v", err)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(new(string), "go-env", "development", "The go environment to run the command in.")
	rootCmd.PersistentFlags().String("ticker", "", "The underlying ticker to query.")
	rootCmd.PersistentFlags().String("option-type", "call", "Option type: call or put.")
	rootCmd.PersistentFlags().String("strike-mode", "exact", "Strike selection mode: exact, percentage_range or nearest.")
	rootCmd.PersistentFlags().Float64("strike", 0, "Strike price for exact mode.")
	rootCmd.PersistentFlags().Float64("target-strike", 0, "Target strike for percentage_range mode.")
	rootCmd.PersistentFlags().Float64("range-percent", 0, "Percent band around the target strike for percentage_range mode.")
	rootCmd.PersistentFlags().Int("count-above", 0, "Number of strikes above the current price for nearest mode.")
	rootCmd.PersistentFlags().Int("count-below", 0, "Number of strikes below the current price for nearest mode.")
	rootCmd.PersistentFlags().Int("duration-days", 0, "Match contracts with this many days to expiry.")
	rootCmd.PersistentFlags().Int("tolerance-days", 0, "Widen the days-to-expiry match by this many days.")
	rootCmd.PersistentFlags().Int("lookback-days", 0, "How many days of history to aggregate.")

	rootCmd.MarkFlagRequired("ticker")

	cobra.CheckErr(rootCmd.Execute())
}

func buildRequest(cmd *cobra.Command) (*models.PremiumQueryRequest, error) {
	ticker, err := cmd.Flags().GetString("ticker")
	if err != nil {
		return nil, err
	}

	optionType, err := cmd.Flags().GetString("option-type")
	if err != nil {
		return nil, err
	}

	strikeMode, err := cmd.Flags().GetString("strike-mode")
	if err != nil {
		return nil, err
	}

	req := &models.PremiumQueryRequest{
		Ticker:     ticker,
		OptionType: models.OptionType(optionType),
		StrikeMode: models.StrikeMode(strikeMode),
	}

	floatFlag := func(name string, dst **float64) error {
		if !cmd.Flags().Changed(name) {
			return nil
		}

		v, err := cmd.Flags().GetFloat64(name)
		if err != nil {
			return err
		}

		*dst = &v
		return nil
	}

	intFlag := func(name string, dst **int) error {
		if !cmd.Flags().Changed(name) {
			return nil
		}

		v, err := cmd.Flags().GetInt(name)
		if err != nil {
			return err
		}

		*dst = &v
		return nil
	}

	if err := floatFlag("strike", &req.Strike); err != nil {
		return nil, err
	}

	if err := floatFlag("target-strike", &req.TargetStrike); err != nil {
		return nil, err
	}

	if err := floatFlag("range-percent", &req.RangePercent); err != nil {
		return nil, err
	}

	if err := intFlag("count-above", &req.CountAbove); err != nil {
		return nil, err
	}

	if err := intFlag("count-below", &req.CountBelow); err != nil {
		return nil, err
	}

	if err := intFlag("duration-days", &req.DurationDays); err != nil {
		return nil, err
	}

	if err := intFlag("tolerance-days", &req.ToleranceDays); err != nil {
		return nil, err
	}

	if err := intFlag("lookback-days", &req.LookbackDays); err != nil {
		return nil, err
	}

	return req, nil
}

func renderResponse(response *models.PremiumQueryResponse) string {
	display := &strings.Builder{}
	p := message.NewPrinter(language.English)

	display.WriteString(p.Sprintf("%s %s premiums (%s mode): %d strikes, %d data points\n",
		response.Ticker, response.OptionType, response.StrikeMode, response.TotalStrikes, response.TotalDataPoints))

	table := tablewriter.NewWriter(display)

	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetColumnSeparator("")
	table.SetHeader([]string{"Strike", "Points", "Min", "Max", "Avg", "Median", "Std Dev", "Avg Delta", "Last Seen"})

	for _, stats := range response.Results {
		avgDelta := "-"
		if stats.AvgDelta != nil {
			avgDelta = p.Sprintf("%.3f", *stats.AvgDelta)
		}

		table.Append([]string{
			p.Sprintf("$%.2f", stats.StrikePrice),
			p.Sprintf("%d", stats.DataPoints),
			p.Sprintf("%.2f", stats.MinPremium),
			p.Sprintf("%.2f", stats.MaxPremium),
			p.Sprintf("%.2f", stats.AvgPremium),
			p.Sprintf("%.2f", stats.MedianPremium),
			p.Sprintf("%.2f", stats.StdDevPremium),
			avgDelta,
			stats.LastSeen.Format("2006-01-02 15:04"),
		})
	}

	table.Render()

	return display.String()
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

	args.Request.ApplyDefaults()

	if err := args.Request.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	queryService := query.NewService(data.NewDatabaseService(db))

	response, err := queryService.QueryPremiums(context.Background(), args.Request)
	if err != nil {
		return fmt.Errorf("query failed: %v", err)
	}

	fmt.Println(renderResponse(response))

	return nil
}
