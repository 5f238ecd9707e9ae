package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/backend"
	"github.com/sells-group/quote-cli/internal/ontology"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/pipeline"
	"github.com/sells-group/quote-cli/internal/risk"
	"github.com/sells-group/quote-cli/internal/store"
	anthropicpkg "github.com/sells-group/quote-cli/pkg/anthropic"
	"github.com/sells-group/quote-cli/pkg/tableapi"
)

// appEnv holds the store and pipeline shared by the ingest, compare,
// risks, and serve commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initApp sets up the store and, for ingest-capable modes, the
// extraction backends and pipeline. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var backends []parser.Backend
	var grader ontology.Grader

	if cfg.TableAPI.Key != "" {
		client := tableapi.NewClient(cfg.TableAPI.Key,
			tableapi.WithBaseURL(cfg.TableAPI.BaseURL),
			tableapi.WithRateLimit(cfg.TableAPI.RateLimitRPS),
		)
		backends = append(backends, backend.NewTableAPI(client))
	}
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		backends = append(backends, backend.NewAIConsensus(client, cfg.Parse.RepairQuantities, cfg.Anthropic.ExtractModels...))
		if cfg.Match.GraderEnabled {
			grader = ontology.NewAnthropicGrader(client, cfg.Anthropic.GraderModel)
		}
	}
	// The rule-based backend needs no credentials and always runs.
	backends = append(backends, backend.NewRules())

	patterns := risk.BuiltinPatterns()
	if cfg.Risk.PatternsPath != "" {
		patterns, err = risk.LoadPatterns(cfg.Risk.PatternsPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load risk patterns")
		}
		zap.L().Info("using custom risk patterns",
			zap.String("path", cfg.Risk.PatternsPath),
			zap.Int("patterns", len(patterns)),
		)
	}

	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	zap.L().Info("pipeline initialized",
		zap.Strings("backends", names),
		zap.Bool("grader", grader != nil),
		zap.String("store", cfg.Store.Driver),
	)

	return &appEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, backends, grader, risk.NewScanner(patterns)),
	}, nil
}
