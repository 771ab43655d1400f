package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix scopes object-storage credentials, e.g. DEVICELINK_S3_ACCESS_KEY.
const envPrefix = "DEVICELINK_S3"

// loadEnvironment reads .env files next to the config file and in the working
// directory, then fills S3 credentials from the environment. Variables already
// set in the process environment win over .env values.
func loadEnvironment(cfg *Config, configDir string) error {
	var files []string
	for _, candidate := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			files = append(files, candidate)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg.S3); err != nil {
		return fmt.Errorf("read %s_* environment: %w", envPrefix, err)
	}
	if cfg.S3.Endpoint != "" && cfg.Export.S3Endpoint == "" {
		cfg.Export.S3Endpoint = cfg.S3.Endpoint
	}
	if cfg.S3.Region != "" {
		cfg.Export.S3Region = cfg.S3.Region
	}
	return nil
}
