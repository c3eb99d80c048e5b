package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavel-fokin/media-stash/internal/extractor"
	"github.com/pavel-fokin/media-stash/internal/files"
	"github.com/pavel-fokin/media-stash/internal/fs"
	"github.com/pavel-fokin/media-stash/internal/media"
)

const (
	defaultVersion  = "1.0.0"
	shutdownTimeout = 15 * time.Second
)

type Config struct {
	Addr        string `env:"MEDIA_STASH_ADDR" envDefault:":3000"`
	DataDir     string `env:"MEDIA_STASH_DATA_DIR" envDefault:"downloads"`
	StaticDir   string `env:"MEDIA_STASH_STATIC_DIR"`
	MaxBodySize int64  `env:"MEDIA_STASH_MAX_BODY_SIZE" envDefault:"1048576"`

	MaxAge            time.Duration `env:"MEDIA_STASH_MAX_AGE" envDefault:"1h"`
	SweepInterval     time.Duration `env:"MEDIA_STASH_SWEEP_INTERVAL" envDefault:"30m"`
	PostDownloadGrace time.Duration `env:"MEDIA_STASH_POST_DOWNLOAD_GRACE" envDefault:"1m"`

	ExtractorCandidates []string      `env:"MEDIA_STASH_EXTRACTOR_CANDIDATES" envSeparator:","`
	ProbeTimeout        time.Duration `env:"MEDIA_STASH_PROBE_TIMEOUT" envDefault:"5s"`
	MetadataTimeout     time.Duration `env:"MEDIA_STASH_METADATA_TIMEOUT" envDefault:"30s"`
	DownloadTimeout     time.Duration `env:"MEDIA_STASH_DOWNLOAD_TIMEOUT" envDefault:"5m"`
	CacheExtractor      bool          `env:"MEDIA_STASH_CACHE_EXTRACTOR" envDefault:"false"`

	LogLevel     slog.Level    `env:"MEDIA_STASH_LOG_LEVEL" envDefault:"INFO"`
	WriteTimeout time.Duration `env:"MEDIA_STASH_WRITE_TIMEOUT" envDefault:"6m"`

	// Version is reported by the health endpoint, set at build time.
	Version string
}

// Retention returns the staged file retention policy
func (cfg *Config) Retention() files.RetentionPolicy {
	policy := files.DefaultRetentionPolicy()
	if cfg.MaxAge > 0 {
		policy.MaxAge = cfg.MaxAge
	}
	if cfg.SweepInterval > 0 {
		policy.SweepInterval = cfg.SweepInterval
	}
	if cfg.PostDownloadGrace > 0 {
		policy.PostDownloadGrace = cfg.PostDownloadGrace
	}
	return policy
}

// Server is the HTTP server together with the staged file lifecycle it owns
type Server struct {
	*http.Server
	files *files.Service
}

func New(cfg *Config) (*Server, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	storage, err := fs.NewStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	entries := cfg.ExtractorCandidates
	if len(entries) == 0 {
		entries = extractor.DefaultCandidates
	}
	candidates, err := extractor.ParseCandidates(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid extractor candidates: %w", err)
	}

	invoker := extractor.NewInvoker(extractor.Config{
		Candidates:      candidates,
		ProbeTimeout:    cfg.ProbeTimeout,
		MetadataTimeout: cfg.MetadataTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		CacheExecutable: cfg.CacheExtractor,
	})

	fileService := files.NewService(storage, cfg.Retention())
	mediaService := media.NewService(invoker, storage)
	validate := validator.New()

	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("GET /api/health", health(version))
	mux.HandleFunc("POST /api/info", info(validate, mediaService))
	mux.HandleFunc("POST /api/download", download(validate, mediaService))
	mux.HandleFunc("GET "+media.FileRoute+"{name}", serveFile(fileService))
	mux.HandleFunc("GET /api/supported-sites", supportedSites(mediaService))
	mux.HandleFunc("/api/", notFound)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	handler := loggingMiddleware(cors(limitBody(mux, cfg.MaxBodySize)))

	slog.Info("Server configured",
		"addr", cfg.Addr,
		"data_dir", storage.Dir(),
		"max_age", cfg.Retention().MaxAge.String(),
		"candidates", len(candidates),
	)

	return &Server{
		Server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		files: fileService,
	}, nil
}

// Run starts the sweeper and serves HTTP until ctx is cancelled. On the way
// out the server is shut down, the sweeper is stopped and waited for, and
// only then are pending deletions flushed.
func (s *Server) Run(ctx context.Context) error {
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		s.files.Run(sweepCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		slog.Info("Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.Shutdown(shutdownCtx)
	}

	stopSweeper()
	<-sweeperDone
	s.files.Close()
	return err
}

// Close stops the server immediately and flushes pending deletions
func (s *Server) Close() error {
	err := s.Server.Close()
	s.files.Close()
	return err
}
