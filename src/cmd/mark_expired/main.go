package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/dbutils"
	"github.com/premiummeter/premiummeter/src/scraper"
	"github.com/premiummeter/premiummeter/src/utils"
)

type RunArgs struct {
	GoEnv string
}

var rootCmd = &cobra.Command{
	Use:   "main",
	Short: "Mark premium records whose contracts have expired",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		if err := run(RunArgs{
			GoEnv: goEnv,
		}); err != nil {
			log.Fatalf("error running command: %v", err)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(new(string), "go-env", "development", "The go environment to run the command in.")

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

	count, err := scraper.NewExpiryMarker(data.NewDatabaseService(db)).MarkExpired()
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %v", err)
	}

	log.Infof("marked %d contracts expired", count)

	return nil
}
