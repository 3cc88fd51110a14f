package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/ipf"
	"github.com/ssargent/ipfdb/pkg/store"
)

const (
	defaultListLimit  = 1000
	defaultImportName = "upload.ipf"
	defaultExportName = "catalog.ipf"
)

var errLimitReached = errors.New("limit reached")

// Server holds the API server state
type Server struct {
	store     store.Store
	refresher Refresher
	config    ServerConfig
	metrics   *Metrics
	logger    *zap.Logger
}

// NewServer creates a new API server. refresher may be nil.
func NewServer(catalog store.Store, refresher Refresher, config ServerConfig, metrics *Metrics) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:     catalog,
		refresher: refresher,
		config:    config,
		metrics:   metrics,
		logger:    logger.Named("api"),
	}
}

// handleHealth reports whether the store answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Count(r.Context()); err != nil {
		s.metrics.RecordHealthCheck(false)
		sendError(w, fmt.Sprintf("store unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// symbolParam returns the symbol from the wildcard route. Symbols may hold
// slashes, so clients send them escaped.
func symbolParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "*"))
}

// handleGetProfile returns the non-empty fields of one profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		sendError(w, "Invalid symbol encoding", http.StatusBadRequest)
		return
	}

	p, err := s.store.Get(symbol)
	if err != nil {
		sendError(w, err.Error(), statusForError(err))
		return
	}

	sendSuccess(w, p.NonEmptyFields())
}

// handleDeleteProfile removes one profile
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		sendError(w, "Invalid symbol encoding", http.StatusBadRequest)
		return
	}

	if err := s.store.Delete(symbol); err != nil {
		sendError(w, err.Error(), statusForError(err))
		return
	}

	sendSuccess(w, map[string]string{"message": "Profile deleted successfully"})
}

// handleListProfiles lists profiles in symbol order, optionally of one type
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := []ProfileSummary{}
	collect := func(p *ipf.Profile) error {
		if limit > 0 && len(out) >= limit {
			return errLimitReached
		}
		out = append(out, ProfileSummary{
			Symbol:      p.Symbol(),
			Type:        p.Type(),
			Description: p.Description(),
		})
		return nil
	}

	if typ := r.URL.Query().Get("type"); typ != "" {
		err = s.store.ScanType(r.Context(), typ, collect)
	} else {
		err = s.store.Scan(r.Context(), collect)
	}
	if err != nil && !errors.Is(err, errLimitReached) {
		sendError(w, fmt.Sprintf("Failed to list profiles: %v", err), statusForError(err))
		return
	}

	sendSuccess(w, out)
}

// handleImport applies the IPF document in the request body. The container
// is chosen by ?name=, or gzip when the body is gzip encoded.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultImportName
		if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
			name += ".gz"
		}
	}

	res, err := s.store.ImportStream(r.Context(), r.Body, name)
	s.metrics.RecordImport(res, err)
	if err != nil {
		s.logger.Warn("import failed", zap.String("name", name), zap.Error(err))
		if res != nil {
			// partial progress was committed, report it with the error
			sendJSON(w, statusForError(err), APIResponse{Success: false, Data: res, Error: err.Error()})
			return
		}
		sendError(w, fmt.Sprintf("Failed to import: %v", err), statusForError(err))
		return
	}

	sendSuccess(w, res)
}

// handleExport streams the catalog as an IPF document. ?name= selects the
// container and ?skip_removed= overrides the configured default.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultExportName
	}
	skipRemoved := s.config.SkipRemoved
	if v := r.URL.Query().Get("skip_removed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, "Invalid skip_removed value", http.StatusBadRequest)
			return
		}
		skipRemoved = b
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)}))

	declarations := 0
	sw, err := ipf.NewStreamWriter(w, name,
		ipf.WithSkipRemoved(skipRemoved),
		ipf.WithDeclarationHandler(func(string, []string) { declarations++ }),
		ipf.WithComposerLogger(s.logger))
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to start export: %v", err), http.StatusInternalServerError)
		return
	}

	start := time.Now()
	n, err := s.store.Export(r.Context(), sw.Composer())
	if cerr := sw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// headers are gone, the client sees a truncated body
		s.logger.Error("export failed", zap.String("name", name), zap.Int("profiles", n), zap.Error(err))
		return
	}

	s.metrics.RecordExport(n, declarations)
	s.logger.Info("export finished",
		zap.String("name", name),
		zap.Int("profiles", n),
		zap.Int("declarations", declarations),
		zap.Duration("duration", time.Since(start)))
}

// handleImports returns the import history, newest first
func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := s.store.Imports(r.Context(), limit)
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to list imports: %v", err), statusForError(err))
		return
	}
	if history == nil {
		history = []*store.ImportResult{}
	}

	sendSuccess(w, history)
}

// handleStats returns catalog statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to get stats: %v", err), statusForError(err))
		return
	}
	s.metrics.UpdateCatalogStats(stats)
	sendSuccess(w, stats)
}

// handleRefresh re-imports the configured source
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		sendError(w, "No catalog source configured", http.StatusNotFound)
		return
	}

	res, err := s.refresher.RefreshNow(r.Context())
	s.metrics.RecordImport(res, err)
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to refresh: %v", err), http.StatusBadGateway)
		return
	}

	sendSuccess(w, res)
}

// startMetricsUpdater refreshes catalog gauges until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stats, err := s.store.Stats(ctx)
		if err != nil {
			s.logger.Warn("metrics update failed", zap.Error(err))
			continue
		}
		s.metrics.UpdateCatalogStats(stats)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s value %q", name, v)
	}
	return n, nil
}

func contentTypeFor(name string) string {
	switch ipf.DetectCompression(name) {
	case ipf.CompressionGzip:
		return "application/gzip"
	case ipf.CompressionZip:
		return "application/zip"
	default:
		return "text/csv; charset=utf-8"
	}
}
