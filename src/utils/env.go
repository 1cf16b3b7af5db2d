package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const DEV_ENV_FILENAME = ".env.development"
const PROD_ENV_FILENAME = ".env.production"

func InitEnvironmentVariables(projectsDir string, goEnv string) error {
	// Production hosts inject config directly and ship no .env files
	if goEnv == "production" && os.Getenv("ENV") == "production" {
		log.Info("Running in production environment")
		return nil
	}

	if projectsDir == "" {
		return fmt.Errorf("InitEnvironmentVariables: PROJECTS_DIR environment variable not set")
	}

	envDir := filepath.Join(projectsDir, "premiummeter", "src")

	envFile := filepath.Join(envDir, DEV_ENV_FILENAME)
	if goEnv == "production" {
		envFile = filepath.Join(envDir, PROD_ENV_FILENAME)
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("InitEnvironmentVariables: failed to load %s file: %v", envFile, err)
	}

	return nil
}

func GetEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("GetEnv: environment variable %s not set", key)
	}

	return value, nil
}
