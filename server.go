package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/handlers"
	"github.com/bsaid97/go-geojson-cleaner/history"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, appOptions{Publish: cfg.Events.Backend != "none"})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           a.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("server_listening", "addr", cfg.Listen, "workers", a.pool.NumWorkers)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed to start: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/clean", a.cleanHandler)
	mux.HandleFunc("POST /check-geometry", a.checkGeometryHandler)
	mux.HandleFunc("GET /v1/sessions/{session}/history", a.historyHandler)
	mux.HandleFunc("POST /v1/sessions/{session}/comments", a.commentHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return a.recoverer(mux)
}

// recoverer keeps one bad request from taking the server down.
func (a *app) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.log.Error("panic_recovered", "path", r.URL.Path, "panic", rec)
				sendError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type cleanResponse struct {
	*handlers.Report
	Cleaned geometry.FeatureCollection `json:"featureCollection"`
}

func (a *app) cleanHandler(w http.ResponseWriter, r *http.Request) {
	upload, err := utils.ReadUpload(w, r, "file", a.cfg.MaxUploadBytes)
	if err != nil {
		sendError(w, uploadStatus(err), err.Error())
		return
	}

	report, err := a.pipeline.RunDocument(r.Context(), upload.SourceName, bytes.NewReader(upload.Body))
	if err != nil {
		sendError(w, runStatus(err), err.Error())
		return
	}

	if upload.Session != "" {
		entry := history.Entry{
			Session:   upload.Session,
			Kind:      history.KindVersion,
			Source:    upload.SourceName,
			RunID:     report.RunID,
			Timestamp: time.Now().UTC(),
		}
		if err := a.history.Append(r.Context(), entry); err != nil {
			a.log.Error("history_append_error", "session", upload.Session, "err", err)
		}
	}

	if r.URL.Query().Get("format") == "zip" {
		jsonFC, err := json.Marshal(report.FeatureCollection())
		if err != nil {
			sendError(w, http.StatusInternalServerError, err.Error())
			return
		}
		zipData, err := utils.GenerateShapefileZip(jsonFC, report.Kept())
		if err != nil {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
			return
		}
		sendZipResponse(w, zipData)
		return
	}

	sendJSON(w, http.StatusOK, cleanResponse{Report: report, Cleaned: report.FeatureCollection()})
}

func (a *app) checkGeometryHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	features, err := geometry.DecodeFeatureCollection(r.Body)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs, err := handlers.CheckGeometry(r.Context(), a.pool, a.validator, features)
	if err != nil {
		sendError(w, runStatus(err), err.Error())
		return
	}
	sendJSON(w, http.StatusOK, errs)
}

func (a *app) historyHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := a.history.List(r.Context(), r.PathValue("session"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	sendJSON(w, http.StatusOK, entries)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (a *app) commentHandler(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid comment: %v", err))
		return
	}

	entry := history.Entry{
		Session:   r.PathValue("session"),
		Kind:      history.KindComment,
		Text:      req.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.history.Append(r.Context(), entry); err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusCreated, entry)
}

func uploadStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// runStatus maps pipeline errors: unreadable input is the client's fault,
// a geometry GEOS cannot process is unprocessable.
func runStatus(err error) int {
	var ierr *handlers.IngestionError
	var gerr *handlers.GeometryProcessingError
	switch {
	case errors.As(err, &ierr):
		return http.StatusBadRequest
	case errors.As(err, &gerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

func sendZipResponse(w http.ResponseWriter, zipData []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", utils.ExportName+".zip"))
	w.WriteHeader(http.StatusOK)
	w.Write(zipData)
}
