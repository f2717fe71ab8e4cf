// Package web serves the planner status API, recent logs, settings and a
// websocket stream of published path segments.
package web

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ScenarioDir is where /api/scenarios looks for scenario scripts, relative
// to the working directory.
var ScenarioDir = filepath.FromSlash("configs/scenarios")

func Handler(status *Status, settings SettingsStore, logs *LogBuffer, stream *PathBroadcaster) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	// Returns paths like "./configs/scenarios/square.yaml".
	mux.HandleFunc("/api/scenarios", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, struct {
			Paths []string `json:"paths"`
		}{Paths: listScenarios(ScenarioDir)})
	})

	mux.Handle("/api/settings", settings.Handler())
	mux.Handle("/api/stream", StreamHandler(stream))
	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" {
				http.NotFound(w, r)
				return
			}
		}

		snap := status.Snapshot(time.Now().UTC())
		seg := snap.LastSegment.Segment
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>pathplanner</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>pathplanner</h1>")
		_, _ = fmt.Fprintf(w, "<p>JSON: <a href=\"/api/status\">/api/status</a>, live segments: <code>/api/stream</code> (websocket).</p>")
		_, _ = fmt.Fprintf(w, "<pre>flight_mode=%s\nmoving=%t\ncycles=%d\nsegments_published_total=%d\noverruns=%d\nend=(%.2f, %.2f, %.2f)</pre>",
			html.EscapeString(snap.FlightMode), snap.Moving, snap.Cycles, snap.SegmentsTotal, snap.Overruns,
			seg.End.North, seg.End.East, seg.End.Down,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func listScenarios(base string) []string {
	paths := []string{}
	entries, err := os.ReadDir(base)
	if err != nil {
		// Missing directory is an empty list.
		return paths
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")) {
			continue
		}
		p := filepath.ToSlash(filepath.Join(base, name))
		if !filepath.IsAbs(base) {
			p = "./" + p
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
