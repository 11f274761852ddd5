// Package server serves the ledger to a browser.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/fetcher"
)

//go:embed index.html
var content embed.FS

// Loader returns the resources to serve.
type Loader func() ([]fetcher.StandardizedResource, error)

// NewHandler returns the page at "/", the fuzzy /search?q= endpoint and the
// /resources listing, all backed by load.
func NewHandler(load Loader, log zerolog.Logger) http.Handler {
	h := &handler{load: load, log: log}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(content)))
	mux.HandleFunc("/search", h.search)
	mux.HandleFunc("/resources", h.resources)
	return mux
}

type handler struct {
	load Loader
	log  zerolog.Logger
}

// searchText is what a query is matched against.
func searchText(r fetcher.StandardizedResource) string {
	return strings.Join([]string{r.Name, r.ID, r.Service, r.Stack()}, " ")
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	resources, ok := h.loadOrFail(w)
	if !ok {
		return
	}

	targets := make([]string, 0, len(resources))
	for _, res := range resources {
		targets = append(targets, searchText(res))
	}

	ranks := fuzzy.RankFindFold(query, targets)
	sort.Stable(ranks)

	results := make([]fetcher.StandardizedResource, 0, len(ranks))
	for _, rank := range ranks {
		results = append(results, resources[rank.OriginalIndex])
	}
	h.writeJSON(w, results)
}

func (h *handler) resources(w http.ResponseWriter, r *http.Request) {
	resources, ok := h.loadOrFail(w)
	if !ok {
		return
	}

	stack := r.URL.Query().Get("stack")
	results := make([]fetcher.StandardizedResource, 0, len(resources))
	for _, res := range resources {
		if stack == "" || res.Stack() == stack {
			results = append(results, res)
		}
	}
	h.writeJSON(w, results)
}

func (h *handler) loadOrFail(w http.ResponseWriter) ([]fetcher.StandardizedResource, bool) {
	resources, err := h.load()
	if errors.Is(err, cache.ErrNoCache) {
		http.Error(w, "No state yet. Run 'up' or 'sync' first.", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load state")
		http.Error(w, "Failed to load state.", http.StatusInternalServerError)
		return nil, false
	}
	return resources, true
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("failed to write response")
	}
}

// StartServer serves on addr until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, addr string, load Loader, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(load, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", addr).Msg("starting server")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
