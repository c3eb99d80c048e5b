package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/media-stash/internal/extractor"
	"github.com/pavel-fokin/media-stash/internal/files"
	"github.com/pavel-fokin/media-stash/internal/media"
)

func TestHealthz(t *testing.T) {
	req, err := http.NewRequest("GET", "/healthz", nil)
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(healthz)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	health("1.2.3").ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)

	_, err := time.Parse(time.RFC3339Nano, body.Timestamp)
	assert.NoError(t, err)
}

func TestCORSMiddleware(t *testing.T) {
	handler := cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/api/info", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("regular request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestLimitBodyMiddleware(t *testing.T) {
	var received string
	handler := limitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		received = string(body)
		w.WriteHeader(http.StatusOK)
	}), 10)

	t.Run("body within limit", func(t *testing.T) {
		req, err := http.NewRequest("POST", "/", strings.NewReader("123456789"))
		assert.NoError(t, err)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "123456789", received)
	})

	t.Run("body exceeds limit", func(t *testing.T) {
		req, err := http.NewRequest("POST", "/", strings.NewReader("12345678901"))
		assert.NoError(t, err)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.Contains(t, rr.Body.String(), `"success":false`)
	})

	t.Run("nil body", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/", nil)
		assert.NoError(t, err)
		require.Nil(t, req.Body)
		received = "unset"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, received)
	})
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	t.Run("generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid request",
			err:        fmt.Errorf("%w: unknown format", media.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request: unknown format",
		},
		{
			name:       "invalid url",
			err:        fmt.Errorf("%w: unsupported url", extractor.ErrInvalidURL),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Unsupported or invalid URL",
		},
		{
			name:       "unavailable",
			err:        fmt.Errorf("%w: no candidates", extractor.ErrExtractorUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Media extractor is not available on the server",
		},
		{
			name:       "metadata timeout",
			err:        extractor.ErrMetadataTimeout,
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "Timed out fetching media information",
		},
		{
			name:       "not found",
			err:        files.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "File not found",
		},
		{
			name:       "download failed",
			err:        fmt.Errorf("%w: exit status 1", extractor.ErrDownloadFailed),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Download failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := errorStatus(tt.err, "Download failed")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "downloads", cfg.DataDir)
	assert.Equal(t, int64(1<<20), cfg.MaxBodySize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 6*time.Minute, cfg.WriteTimeout)
	assert.Empty(t, cfg.ExtractorCandidates)
	assert.False(t, cfg.CacheExtractor)
	assert.Equal(t, files.DefaultRetentionPolicy(), cfg.Retention())
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("MEDIA_STASH_MAX_AGE", "2h")
	t.Setenv("MEDIA_STASH_POST_DOWNLOAD_GRACE", "10s")
	t.Setenv("MEDIA_STASH_EXTRACTOR_CANDIDATES", "/opt/yt-dlp,python3 -m yt_dlp")
	t.Setenv("MEDIA_STASH_LOG_LEVEL", "DEBUG")
	t.Setenv("MEDIA_STASH_CACHE_EXTRACTOR", "true")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, []string{"/opt/yt-dlp", "python3 -m yt_dlp"}, cfg.ExtractorCandidates)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.CacheExtractor)

	policy := cfg.Retention()
	assert.Equal(t, 2*time.Hour, policy.MaxAge)
	assert.Equal(t, 30*time.Minute, policy.SweepInterval)
	assert.Equal(t, 10*time.Second, policy.PostDownloadGrace)
}
