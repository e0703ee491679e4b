package lblstats

// HTTP server for the dashboard and the instance explorer.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	defaultTopImages  = 10
	defaultImageWidth = DefaultImageWidth
)

// Server serves the rendered dashboard, JSON queries over the report tables and annotated
// anomaly images.
type Server struct {
	cfg    *Config
	vocab  Vocabulary
	router *httprouter.Router

	mu      sync.Mutex
	reports map[string]*SplitReport
}

// NewServer returns a server for the reports in cfg.OutputDir and the dashboard in
// cfg.DashboardDir.
func NewServer(cfg *Config) (*Server, error) {
	vocab, err := cfg.Vocabulary()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		vocab:   vocab,
		reports: make(map[string]*SplitReport),
	}

	router := httprouter.New()
	router.GET("/", s.httpIndex) // Redirects to /pages/ once the dashboard is rendered.
	router.GET("/splits", s.httpSplits)
	router.ServeFiles("/pages/*filepath", http.Dir(cfg.DashboardDir))
	router.GET("/api/:split/instances", s.httpInstances)
	router.GET("/api/:split/anomalies/top", s.httpTopAnomalies)
	router.GET("/images/:split/:name", s.httpAnnotatedImage)
	s.router = router

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr (example: ":8080") until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		Logf("Listening on %v", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// report returns the report of split, reloading it when the manifest changed since it was cached.
func (s *Server) report(split string) (*SplitReport, error) {
	m, err := ReadManifest(s.cfg.OutputDir, split)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[split]; ok && r.Manifest.RunID == m.RunID {
		return r, nil
	}
	r, err := LoadSplitReport(s.cfg.OutputDir, split)
	if err != nil {
		return nil, err
	}
	s.reports[split] = r
	return r, nil
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logf("Failed to encode the response: %v", err)
	}
}

func sendError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	http.Error(w, fmt.Sprintf(format, args...), code)
}

// sendReportError maps a failure to load a report to a response.
func sendReportError(w http.ResponseWriter, split string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		sendError(w, http.StatusNotFound, "split %q has not been processed", split)
		return
	}
	Logf("Failed to load the report for split %q: %v", split, err)
	sendError(w, http.StatusInternalServerError, "failed to load the report for split %q", split)
}

func (s *Server) httpIndex(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	index := filepath.Join(s.cfg.DashboardDir, IndexPage)
	if _, err := os.Stat(index); err != nil {
		sendError(w, http.StatusNotFound, "the dashboard has not been rendered")
		return
	}
	// The dashboard links are relative to the directory of the index page.
	http.Redirect(w, r, "/pages/", http.StatusFound)
}

func (s *Server) httpSplits(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	splits, err := ProcessedSplits(s.cfg.OutputDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		sendError(w, http.StatusInternalServerError, "cannot list splits: %v", err)
		return
	}
	if splits == nil {
		splits = []string{}
	}
	sendJSON(w, splits)
}

// parseInstanceFilter reads an InstanceFilter from the query parameters category and size
// (comma separated names) and occluded and truncated.
func (s *Server) parseInstanceFilter(r *http.Request) (InstanceFilter, error) {
	var f InstanceFilter
	q := r.URL.Query()

	for _, name := range splitList(q.Get("category")) {
		id, ok := s.vocab.ID(name)
		if !ok {
			return f, fmt.Errorf("unknown category %q", name)
		}
		f.Categories = append(f.Categories, id)
	}
	for _, name := range splitList(q.Get("size")) {
		b, err := ParseSizeBucket(name)
		if err != nil {
			return f, err
		}
		f.Sizes = append(f.Sizes, b)
	}

	var err error
	if f.Occluded, err = ParseTristate(q.Get("occluded")); err != nil {
		return f, err
	}
	if f.Truncated, err = ParseTristate(q.Get("truncated")); err != nil {
		return f, err
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Example: curl 'localhost:8080/api/val/instances?category=car,bus&size=small&occluded=true'
func (s *Server) httpInstances(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	split := params.ByName("split")
	filter, err := s.parseInstanceFilter(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "%v", err)
		return
	}
	rep, err := s.report(split)
	if err != nil {
		sendReportError(w, split, err)
		return
	}
	sendJSON(w, SummarizeInstances(rep.Instances, filter, s.vocab))
}

// Example: curl 'localhost:8080/api/train/anomalies/top?kind=aspect-ratio&n=5'
func (s *Server) httpTopAnomalies(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	split := params.ByName("split")
	q := r.URL.Query()

	kind := AnomalyKind(q.Get("kind"))
	if kind == "" {
		kind = AspectAnomaly
	}
	if kind != AspectAnomaly && kind != SizeAnomaly {
		sendError(w, http.StatusBadRequest, "unknown anomaly kind %q", kind)
		return
	}
	n := defaultTopImages
	if v := q.Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "invalid image count %q", v)
			return
		}
	}

	rep, err := s.report(split)
	if err != nil {
		sendReportError(w, split, err)
		return
	}
	sendJSON(w, TopAnomalyImages(rep.Anomalies, kind, n))
}

// Example: curl -o img.png 'localhost:8080/images/train/0000f77c-6257be58.jpg?width=640'
func (s *Server) httpAnnotatedImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	split, name := params.ByName("split"), params.ByName("name")
	width := defaultImageWidth
	if v := r.URL.Query().Get("width"); v != "" {
		var err error
		if width, err = strconv.Atoi(v); err != nil || width <= 0 {
			sendError(w, http.StatusBadRequest, "invalid width %q", v)
			return
		}
	}

	rep, err := s.report(split)
	if err != nil {
		sendReportError(w, split, err)
		return
	}

	img, err := LoadAnnotatedImage(s.cfg.ImagePath(split, filepath.Base(name)), rep.Anomalies)
	if errors.Is(err, os.ErrNotExist) {
		sendError(w, http.StatusNotFound, "image %q not found", name)
		return
	} else if err != nil {
		Logf("Failed to load image %q: %v", name, err)
		sendError(w, http.StatusInternalServerError, "cannot load image %q", name)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := EncodeAnnotatedPNG(w, img, width); err != nil {
		Logf("Failed to encode image %q: %v", name, err)
	}
}
