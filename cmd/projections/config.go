package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	DatabaseURL    string        `envconfig:"DATABASE_URL" required:"true"`
	DispatcherName string        `envconfig:"DISPATCHER_NAME" default:"projections"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	StatsInterval  time.Duration `envconfig:"STATS_INTERVAL" default:"30s"`

	Polling struct {
		Interval  time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
		PageSize  int           `envconfig:"PAGE_SIZE" default:"100"`
		CacheSize int           `envconfig:"CACHE_SIZE" default:"10000"`
	}

	PersistInterval time.Duration `envconfig:"PERSIST_INTERVAL" default:"10s"`

	Checkpoints struct {
		Store               string `envconfig:"CHECKPOINT_STORE" default:"postgres"`
		SQLitePath          string `envconfig:"SQLITE_PATH" default:"checkpoints.db"`
		FirestoreProject    string `envconfig:"FIRESTORE_PROJECT"`
		FirestoreCollection string `envconfig:"FIRESTORE_COLLECTION" default:"ProjectionCheckpoints"`
	}

	Retry struct {
		Interval    time.Duration `envconfig:"RETRY_INTERVAL" default:"1s"`
		MaxDuration time.Duration `envconfig:"RETRY_MAX_DURATION" default:"1m"`
	}
}

func parseConfig() (*config, error) {
	var config config

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("config: failed to parse from env, %w", err)
	}

	return &config, nil
}
