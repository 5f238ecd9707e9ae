package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/compare"
	"github.com/sells-group/quote-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for quote ingestion and comparison",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		r := buildRouter(ctx, env, cfg.Compare.MinVariancePct)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the HTTP API. ctx is the server's lifetime
// context; webhook ingests run against it so they are not cancelled
// when the originating request completes.
func buildRouter(ctx context.Context, env *appEnv, minVariancePct float64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		backends := make(map[string]string)
		for name, state := range env.Pipeline.BreakerStates() {
			backends[name] = state.String()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"backends": backends,
		})
	})

	r.Get("/v1/quotes", func(w http.ResponseWriter, req *http.Request) {
		quotes, err := env.Store.ListQuotes(req.Context(), store.QuoteFilter{
			SupplierName: req.URL.Query().Get("supplier"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, quotes)
	})

	r.Get("/v1/quotes/{id}", func(w http.ResponseWriter, req *http.Request) {
		quote, err := env.Store.GetQuote(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if quote == nil {
			writeError(w, http.StatusNotFound, eris.New("quote not found"))
			return
		}
		writeJSON(w, http.StatusOK, quote)
	})

	r.Get("/v1/quotes/{id}/risks", func(w http.ResponseWriter, req *http.Request) {
		quote, err := env.Store.GetQuote(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if quote == nil || quote.Risks == nil {
			writeError(w, http.StatusNotFound, eris.New("no risk report for quote"))
			return
		}
		writeJSON(w, http.StatusOK, quote.Risks)
	})

	r.Delete("/v1/quotes/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := env.Store.DeleteQuote(req.Context(), chi.URLParam(req, "id")); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/v1/compare", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		left, err := env.Store.GetQuote(req.Context(), q.Get("left"))
		if err != nil || left == nil {
			writeError(w, http.StatusNotFound, eris.New("left quote not found"))
			return
		}
		right, err := env.Store.GetQuote(req.Context(), q.Get("right"))
		if err != nil || right == nil {
			writeError(w, http.StatusNotFound, eris.New("right quote not found"))
			return
		}
		result := compare.Compare(
			compare.Dataset{Label: left.SupplierName, Items: left.Items},
			compare.Dataset{Label: right.SupplierName, Items: right.Items},
			compare.Filters{MinVariancePct: minVariancePct},
		)
		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/v1/webhook/ingest", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Path     string `json:"path"`
			Supplier string `json:"supplier"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
			return
		}
		if body.Path == "" || body.Supplier == "" {
			writeError(w, http.StatusBadRequest, eris.New("path and supplier are required"))
			return
		}

		// Run the ingest asynchronously.
		go func() {
			quote, err := env.Pipeline.Ingest(ctx, body.Path, body.Supplier)
			if err != nil {
				zap.L().Error("webhook ingest failed",
					zap.String("path", body.Path),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook ingest complete",
				zap.String("quote_id", quote.ID),
				zap.Float64("grand_total", quote.Totals.Grand),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"path":   body.Path,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
