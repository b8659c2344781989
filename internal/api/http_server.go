package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"postovik/internal/config"
	"postovik/internal/metrics"
	"postovik/internal/models"
	"postovik/internal/pipeline"

	"github.com/rs/zerolog"
)

// Jobs is the scheduling surface the API needs. *scheduler.Scheduler
// satisfies it.
type Jobs interface {
	Schedule(ctx context.Context, job *models.Job) (string, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.JobSummary, error)
}

// Watch is the folder-watch surface. *watcher.Service satisfies it.
type Watch interface {
	Configure(ctx context.Context, payload *models.WatchPayload) (string, string, error)
	Status(ctx context.Context) (*models.WatchStatus, error)
}

// PostGenerator runs one synchronous batch over a spreadsheet.
// *pipeline.Processor satisfies it.
type PostGenerator interface {
	Process(ctx context.Context, in pipeline.ProcessInput) (*models.BatchSummary, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPServer exposes the caller API over HTTP.
type HTTPServer struct {
	cfg     *config.APIConfig
	jobs    Jobs
	watch   Watch
	posts   PostGenerator
	db      Pinger
	presets map[string]map[string]string
	server  *http.Server
	auth    *HTTPAuth
	log     zerolog.Logger
}

// NewHTTPServer builds the server. presets are the named column-mapping
// sets from mappings.yaml; the generate endpoint resolves requests
// without explicit mappings against them, same as the watch configure path.
func NewHTTPServer(cfg *config.APIConfig, jobs Jobs, watch Watch, posts PostGenerator, db Pinger, presets map[string]map[string]string, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, jobs: jobs, watch: watch, posts: posts, db: db, presets: presets}
	srv.log = zerolog.Nop()
	if logger != nil {
		srv.log = logger.With().Str("component", "api").Logger()
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/emails/schedule", srv.handleScheduleEmail)
	mux.HandleFunc("/api/v1/jobs", srv.handleListJobs)
	mux.HandleFunc("/api/v1/jobs/", srv.handleCancelJob)
	mux.HandleFunc("/api/v1/watch/configure", srv.handleWatchConfigure)
	mux.HandleFunc("/api/v1/watch/status", srv.handleWatchStatus)
	mux.HandleFunc("/api/v1/posts/generate", srv.handleGeneratePosts)

	// Health stays outside auth so probes work without credentials.
	root := http.NewServeMux()
	root.HandleFunc("/api/v1/health", srv.handleHealth)
	root.Handle("/", srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(root),
		ReadHeaderTimeout: 5 * time.Second,
		// Generate runs the whole batch synchronously, the write timeout
		// has to cover it.
		WriteTimeout: 5 * time.Minute,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		metrics.IncHTTP(endpointLabel(r.URL.Path))
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

// endpointLabel collapses job ids out of the path: raw paths would blow up
// the metric label cardinality.
func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/api/v1/jobs/") && strings.HasSuffix(path, "/cancel") {
		return "/api/v1/jobs/{id}/cancel"
	}
	return path
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
