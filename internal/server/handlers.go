package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavel-fokin/media-stash/internal/extractor"
	"github.com/pavel-fokin/media-stash/internal/files"
	"github.com/pavel-fokin/media-stash/internal/media"
)

type infoRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type downloadRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Format  string `json:"format" validate:"omitempty,oneof=video audio"`
	Quality string `json:"quality" validate:"omitempty,max=16"`
}

type infoResponse struct {
	Success bool `json:"success"`
	*media.InfoResult
}

type downloadResponse struct {
	Success bool `json:"success"`
	*media.DownloadResult
}

type supportedSitesResponse struct {
	Success bool `json:"success"`
	*media.SupportedSitesResult
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Success:   true,
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Version:   version,
		})
	}
}

func info(validate *validator.Validate, mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req infoRequest
		if !decodeRequest(w, r, validate, &req) {
			return
		}

		result, err := mediaService.Info(r.Context(), req.URL)
		if err != nil {
			slog.Error("Info failed", "error", err, "url", req.URL)
			writeServiceError(w, err, "Failed to get video information")
			return
		}

		writeJSON(w, http.StatusOK, infoResponse{Success: true, InfoResult: result})
	}
}

func download(validate *validator.Validate, mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req downloadRequest
		if !decodeRequest(w, r, validate, &req) {
			return
		}

		result, err := mediaService.Download(r.Context(), &media.DownloadRequest{
			URL:     req.URL,
			Format:  req.Format,
			Quality: req.Quality,
		})
		if err != nil {
			slog.Error("Download failed", "error", err, "url", req.URL, "format", req.Format)
			writeServiceError(w, err, "Download failed")
			return
		}

		slog.Info("Download staged", "file", result.Filename, "size", result.FileSize)
		writeJSON(w, http.StatusOK, downloadResponse{Success: true, DownloadResult: result})
	}
}

func serveFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		file, content, err := fileService.Retrieve(name)
		if err != nil {
			if !errors.Is(err, files.ErrNotFound) {
				slog.Error("File serve failed", "error", err, "file", name)
			}
			writeServiceError(w, err, "Failed to serve file")
			return
		}
		defer content.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
		w.WriteHeader(http.StatusOK)

		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, content); err != nil {
			slog.Warn("File transfer interrupted", "error", err, "file", name)
		}
	}
}

func supportedSites(mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := mediaService.SupportedSites(r.Context())
		if err != nil {
			slog.Error("Supported sites failed", "error", err)
			writeServiceError(w, err, "Failed to get supported sites")
			return
		}

		writeJSON(w, http.StatusOK, supportedSitesResponse{Success: true, SupportedSitesResult: result})
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

// decodeRequest reads a JSON body into dst and validates it, answering 400
// itself when the body is unusable.
func decodeRequest(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "Invalid request"
	}

	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return "Invalid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// errorStatus maps service errors to an HTTP status and a user message.
// fallback is used for failures without a dedicated message.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, media.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, extractor.ErrInvalidURL):
		return http.StatusBadRequest, "Unsupported or invalid URL"
	case errors.Is(err, extractor.ErrExtractorUnavailable):
		return http.StatusServiceUnavailable, "Media extractor is not available on the server"
	case errors.Is(err, extractor.ErrMetadataTimeout):
		return http.StatusGatewayTimeout, "Timed out fetching media information"
	case errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound, "File not found"
	default:
		return http.StatusInternalServerError, fallback
	}
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status, message := errorStatus(err, fallback)
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
