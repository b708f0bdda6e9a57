package config

import (
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	AppStore struct {
		// Environment selects where the first verification attempt goes when
		// the request carries no hint: "production" (default) or "sandbox".
		Environment string `yaml:"environment"`

		// TimeoutSeconds bounds each verifyReceipt call. Zero means the
		// built-in default.
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"appstore"`

	// Secrets come from the environment only, never from the yaml file.
	SharedSecret string `yaml:"-"`

	// PlayServiceAccountJSON is held for the Play-side verifier and is not
	// consumed anywhere yet.
	PlayServiceAccountJSON string `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Failed to unmarshal config data: %v", err)
		}
	case os.IsNotExist(err) && !explicit:
		// The default file is optional, env vars cover everything required.
	default:
		log.Fatalf("Failed to read config file: %v", err)
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":4001"
	}
	env := strings.ToLower(strings.TrimSpace(cfg.AppStore.Environment))
	if env != "sandbox" {
		env = "production"
	}
	cfg.AppStore.Environment = env

	cfg.SharedSecret = os.Getenv("APPLE_SHARED_SECRET")
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		log.Fatalf("APPLE_SHARED_SECRET is not set")
	}
	cfg.PlayServiceAccountJSON = os.Getenv("GOOGLE_PLAY_SERVICE_ACCOUNT_JSON")

	return cfg
}
