package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/jobs"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research job API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tracker := jobs.New(env.Orchestrator, cfg.Jobs)
		tracker.Start(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(tracker, env.Store, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		tracker.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the job-status and response-intake API.
func newRouter(tracker *jobs.Tracker, st store.Store, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/research/jobs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Sector      string `json:"sector"`
				Description string `json:"description"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Sector == "" {
				writeError(w, http.StatusBadRequest, "sector is required")
				return
			}

			job, err := tracker.Submit(body.Sector, body.Description)
			switch {
			case err == nil:
				writeJSON(w, http.StatusAccepted, job)
			case errors.Is(err, jobs.ErrQueueFull):
				writeError(w, http.StatusServiceUnavailable, "research queue is full")
			case faults.IsValidation(err):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				zap.L().Error("serve: submit failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "submit failed")
			}
		})

		r.Get("/research/jobs", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, tracker.List())
		})

		r.Get("/research/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
			job, err := tracker.Status(chi.URLParam(req, "jobID"))
			if err != nil {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Delete("/research/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
			job, err := tracker.Cancel(chi.URLParam(req, "jobID"))
			if err != nil {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		// Response intake: the seller-communication collaborator resolves a
		// pending question here.
		r.Post("/questions/{questionID}/response", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Status   string `json:"status"`
				Response string `json:"response"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			question, err := st.RecordResponse(req.Context(), chi.URLParam(req, "questionID"), model.ResponseStatus(body.Status), body.Response)
			switch {
			case err == nil:
				writeJSON(w, http.StatusOK, question)
			case faults.IsValidation(err):
				writeError(w, http.StatusBadRequest, err.Error())
			case strings.Contains(err.Error(), "not found"):
				writeError(w, http.StatusNotFound, "question not found")
			default:
				zap.L().Error("serve: record response failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "record response failed")
			}
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
