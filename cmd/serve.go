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

	"github.com/lakeside-credit/spread-cli/internal/access"
	"github.com/lakeside-credit/spread-cli/internal/drop"
	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/spread"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

var servePort int

type ctxKey int

const capsKey ctxKey = iota

// modeMiddleware resolves the caller's operating mode from request headers and
// attaches the mode's capability fingerprint to the request context.
func modeMiddleware(gate *access.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := access.ResolutionContext{
				Override:   access.Mode(r.Header.Get("X-Access-Mode")),
				ExaminerID: r.Header.Get("X-Examiner-Id"),
				TenantID:   r.Header.Get("X-Tenant-Id"),
				Role:       r.Header.Get("X-Role"),
				EnvDefault: access.Mode(cfg.Access.DefaultMode),
			}
			mode, err := gate.ModeFor(r.Context(), rc)
			if err != nil {
				writeJSONError(w, http.StatusForbidden, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), capsKey, access.GatesFor(mode))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireCap rejects the request unless the resolved mode carries the
// capability selected by pick.
func requireCap(pick func(access.Capabilities) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caps, ok := r.Context().Value(capsKey).(access.Capabilities)
			if !ok || !pick(caps) {
				writeJSONError(w, http.StatusForbidden, "operation not permitted in this mode")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func buildServeRouter(st store.Store) chi.Router {
	gate := access.NewGate(st)
	renderer := spread.NewRenderer(st, metrics.NewResolver(st))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Access-Mode", "X-Role", "X-Examiner-Id", "X-Tenant-Id"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/capabilities", func(w http.ResponseWriter, r *http.Request) {
		mode := access.Mode(r.URL.Query().Get("mode"))
		if mode == "" {
			mode = access.GlobalDefault
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":         mode,
			"capabilities": access.GatesFor(mode),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(modeMiddleware(gate))

		r.With(requireCap(func(c access.Capabilities) bool { return c.ManageJobs })).
			Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
				list, err := st.ListJobs(r.Context(), store.JobListFilter{
					TenantID: r.URL.Query().Get("tenant"),
					CaseID:   r.URL.Query().Get("case"),
					Status:   model.JobStatus(r.URL.Query().Get("status")),
				})
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err.Error())
					return
				}
				writeJSON(w, http.StatusOK, list)
			})

		r.With(requireCap(func(c access.Capabilities) bool { return c.ManageJobs })).
			Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				job, err := st.GetJob(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err.Error())
					return
				}
				if job == nil {
					writeJSONError(w, http.StatusNotFound, "job not found")
					return
				}
				writeJSON(w, http.StatusOK, job)
			})

		r.With(requireCap(func(c access.Capabilities) bool { return c.DraftGeneration })).
			Post("/cases/{id}/render", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					TenantID   string `json:"tenant_id"`
					SpreadType string `json:"spread_type"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeJSONError(w, http.StatusBadRequest, "invalid request body")
					return
				}
				if req.TenantID == "" || req.SpreadType == "" {
					writeJSONError(w, http.StatusBadRequest, "tenant_id and spread_type are required")
					return
				}
				rendered, err := renderer.RenderAndSave(r.Context(),
					req.TenantID, chi.URLParam(r, "id"), model.SpreadType(req.SpreadType))
				if err != nil {
					writeJSONError(w, http.StatusInternalServerError, err.Error())
					return
				}
				writeJSON(w, http.StatusOK, rendered)
			})

		r.With(requireCap(func(c access.Capabilities) bool { return c.Verify })).
			Post("/verify", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Manifest *model.ArtifactManifest `json:"manifest"`
					Contents map[string][]byte       `json:"contents"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeJSONError(w, http.StatusBadRequest, "invalid request body")
					return
				}
				if req.Manifest == nil {
					writeJSONError(w, http.StatusBadRequest, "manifest is required")
					return
				}
				writeJSON(w, http.StatusOK, drop.Verify(req.Manifest, req.Contents, nil))
			})
	})

	return r
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operations API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildServeRouter(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := srv.Shutdown(context.Background()); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
