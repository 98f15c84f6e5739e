package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joelkehle/jury-instructions/internal/config"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/store"
)

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return st, nil
}

// newOracle picks the model backend named by the config.
var newOracle = func(ctx context.Context, c config.OracleConfig) (oracle.Oracle, error) {
	switch c.Provider {
	case config.ProviderGemini:
		return oracle.NewGeminiOracle(ctx, c.APIKey, c.Model, c.MaxTokens)
	default:
		return oracle.NewAnthropicOracle(c.APIKey, c.Model, c.MaxTokens)
	}
}

func newExecutor(ctx context.Context, c config.OracleConfig, log *zap.Logger) (*oracle.Executor, error) {
	o, err := newOracle(ctx, c)
	if err != nil {
		return nil, err
	}
	opts := []oracle.Option{
		oracle.WithAttempts(c.Attempts),
		oracle.WithTransportTries(c.TransportTries),
		oracle.WithLogger(log.Named("oracle")),
	}
	if c.RequestsPerMinute > 0 {
		opts = append(opts, oracle.WithRateLimit(rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.RequestsPerMinute)), 1)))
	}
	return oracle.NewExecutor(o, opts...), nil
}
