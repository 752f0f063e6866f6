package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings required by a command mode are present.
// Modes: score, batch, serve, worker, analyze.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "score":
	case "batch":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateBatch()...)
		errs = append(errs, c.validateCRM()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "worker":
		errs = append(errs, c.validateStore()...)
		if c.Queue.RedisURL == "" {
			errs = append(errs, "queue.redis_url is required")
		}
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "analyze":
		errs = append(errs, c.validateStore()...)
		if c.Experiment.ConfidenceLevel <= 0 || c.Experiment.ConfidenceLevel >= 1 {
			errs = append(errs, "experiment.confidence_level must be between 0 and 1")
		}
		switch c.Experiment.Strategy {
		case "threshold", "ztest":
		default:
			errs = append(errs, fmt.Sprintf("experiment.strategy %q must be threshold or ztest", c.Experiment.Strategy))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateBatch() []string {
	var errs []string
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, "batch.concurrency must be between 1 and 64")
	}
	if c.Batch.StaleAfterDays < 1 {
		errs = append(errs, "batch.stale_after_days must be >= 1")
	}
	return errs
}

func (c *Config) validateCRM() []string {
	if c.CRM.SyncThreshold < 0 || c.CRM.SyncThreshold > 100 {
		return []string{"crm.sync_threshold must be between 0 and 100"}
	}
	return nil
}
