package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/leadflow"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/queue"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/resilience"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/store"
	sfpkg "github.com/rlpride/dpc-health-insurance-lead-generation-system/pkg/salesforce"
)

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initEngine() (*scorer.Engine, error) {
	e, err := scorer.NewEngine(cfg.Scoring)
	if err != nil {
		return nil, eris.Wrap(err, "build scoring engine")
	}
	return e, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (LEADSCORE_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit, cfg.Salesforce.RateBurst)), nil
}

// initProcessor wires the score, persist and enqueue unit of work. The
// returned close func releases the queue connection.
func initProcessor(engine *scorer.Engine, st store.Store) (*leadflow.Processor, func(), error) {
	q, err := queue.NewClient(cfg.Queue)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init queue client")
	}
	p := leadflow.New(engine, st, q, leadflow.Options{
		SyncThreshold: cfg.CRM.SyncThreshold,
		StaleAfter:    time.Duration(cfg.Batch.StaleAfterDays) * 24 * time.Hour,
		Retry: resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs, cfg.Retry.Multiplier, cfg.Retry.JitterFraction),
	})
	return p, func() {
		if err := q.Close(); err != nil {
			zap.L().Warn("close queue client", zap.Error(err))
		}
	}, nil
}

// readJSON decodes path into v; "-" reads stdin.
func readJSON(path string, stdin io.Reader, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return eris.Wrapf(err, "decode %s", path)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
