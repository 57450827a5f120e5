package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fakeyudi/eyetrial/internal/logging"
	"github.com/fakeyudi/eyetrial/internal/report"
	"github.com/fakeyudi/eyetrial/internal/runner"
	"github.com/fakeyudi/eyetrial/internal/store"
)

// RunStore is the part of store.Store the handlers need.
type RunStore interface {
	ListRuns(ctx context.Context) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	Rows(ctx context.Context, id string) ([]runner.Row, error)
	Failures(ctx context.Context, id string) ([]runner.Failure, error)
}

type App struct {
	Store RunStore
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := app.Store.ListRuns(r.Context())
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	writeJSON(w, r, runs)
}

func (app *App) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := app.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	writeJSON(w, r, run)
}

func (app *App) RowsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := app.Store.Rows(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	writeJSON(w, r, report.JSONRows(rows))
}

func (app *App) FailuresHandler(w http.ResponseWriter, r *http.Request) {
	failures, err := app.Store.Failures(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	writeJSON(w, r, failures)
}

func (app *App) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	logging.From(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(r.Context()).Error("failed to encode response", "path", r.URL.Path, "error", err)
	}
}
