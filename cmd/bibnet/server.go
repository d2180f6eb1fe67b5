package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/bibnet"
	"github.com/brunobiangulo/bibnet/export"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
	"github.com/brunobiangulo/bibnet/store"
	"github.com/brunobiangulo/bibnet/window"
)

const maxUpload = 100 << 20

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analyses and stored runs over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("api-key", "", "Bearer token required on every request (default $BIBNET_API_KEY)")
	cmd.Flags().String("cors-origins", "", "Comma-separated allowed CORS origins (default $BIBNET_CORS_ORIGINS)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	e, _, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	apiKey := flagString(cmd, "api-key")
	if apiKey == "" {
		apiKey = os.Getenv(envPrefix + "_API_KEY")
	}
	origins := flagString(cmd, "cors-origins")
	if origins == "" {
		origins = os.Getenv(envPrefix + "_CORS_ORIGINS")
	}

	addr := flagString(cmd, "addr")
	srv := &http.Server{
		Addr:         addr,
		Handler:      withMiddleware(newHandler(e).routes(), apiKey, origins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // analyses of large files can be long
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

type handler struct {
	engine bibnet.Engine
}

func newHandler(e bibnet.Engine) *handler {
	return &handler{engine: e}
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", h.handleAnalyze)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", h.handleDeleteRun)
	mux.HandleFunc("GET /runs/{id}/similar", h.handleSimilar)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

type analyzeResponse struct {
	RunID       string              `json:"run_id,omitempty"`
	Spec        window.Spec         `json:"spec"`
	Records     int                 `json:"records"`
	Windows     *export.Table       `json:"windows"`
	Diagnostics []bibnet.Diagnostic `json:"diagnostics,omitempty"`
}

// POST /analyze
// Accepts a multipart "file" upload (format by extension) or a JSON body
// {"records": [...]}.
func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var (
		report *bibnet.Report
		err    error
	)
	if perr := r.ParseMultipartForm(maxUpload); perr == nil {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "multipart request needs a 'file' field")
			return
		}
		defer file.Close()

		// Keep only the extension of the client's name; it selects the loader.
		tmp, terr := os.CreateTemp("", "bibnet-*"+filepath.Ext(filepath.Base(header.Filename)))
		if terr != nil {
			writeError(w, http.StatusInternalServerError, "failed to process file")
			slog.Error("creating temp file", "error", terr)
			return
		}
		defer os.Remove(tmp.Name())
		if _, cerr := io.Copy(tmp, file); cerr != nil {
			tmp.Close()
			writeError(w, http.StatusInternalServerError, "failed to save file")
			slog.Error("saving uploaded file", "error", cerr)
			return
		}
		tmp.Close()
		report, err = h.engine.AnalyzeFiles(ctx, tmp.Name())
	} else {
		var req struct {
			Records []record.Paper `json:"records"`
		}
		if derr := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(&req); derr != nil {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'records'")
			return
		}
		report, err = h.engine.Analyze(ctx, req.Records)
	}
	if err != nil {
		writeEngineError(w, "analysis failed", err)
		return
	}

	windows, err := export.WindowTable(report.Stats, export.ScalarNames(report.Stats, nil))
	if err != nil {
		writeEngineError(w, "building window table failed", err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		RunID:       report.RunID,
		Spec:        report.Spec,
		Records:     report.Records,
		Windows:     windows,
		Diagnostics: report.Diagnostics,
	})
}

// GET /runs
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.Runs(r.Context())
	if err != nil {
		writeEngineError(w, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.LoadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, "failed to load run", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE /runs/{id}
func (h *handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.DeleteRun(r.Context(), id); err != nil {
		writeEngineError(w, "delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// GET /runs/{id}/similar?entity=...&statistic=...&k=...
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entity := q.Get("entity")
	if entity == "" {
		writeError(w, http.StatusBadRequest, "entity is required")
		return
	}
	statistic := q.Get("statistic")
	if statistic == "" {
		statistic = stats.NodeWeight
	}
	k := 10
	if s := q.Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "k must be between 1 and 100")
			return
		}
		k = n
	}

	near, err := h.engine.Similar(r.Context(), r.PathValue("id"), statistic, record.EntityID(entity), k)
	if err != nil {
		writeEngineError(w, "similarity search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"neighbors": near})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name           string   `json:"name"`
		Description    string   `json:"description"`
		NeedsPartition bool     `json:"needs_partition"`
		Views          []string `json:"views,omitempty"`
	}
	reg := stats.DefaultRegistry()
	var out []entry
	for _, name := range reg.Names() {
		s, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		e := entry{Name: s.Name, Description: s.Description, NeedsPartition: s.NeedsPartition}
		for _, v := range s.Views {
			e.Views = append(e.Views, v.Name)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"statistics": out})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine errors to a status code.
func writeEngineError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bibnet.ErrStoreRequired):
		status = http.StatusNotImplemented
	case errors.Is(err, bibnet.ErrNoRecords), errors.Is(err, window.ErrWindowConfig):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	writeError(w, status, fmt.Sprintf("%s: %v", msg, err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
