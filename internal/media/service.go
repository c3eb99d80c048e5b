package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dustin/go-humanize"

	"github.com/pavel-fokin/media-stash/internal/extractor"
	"github.com/pavel-fokin/media-stash/internal/files"
)

// FileRoute is the path prefix under which staged files are served
const FileRoute = "/api/file/"

// ErrInvalidRequest is returned for requests with unknown options
var ErrInvalidRequest = errors.New("invalid request")

// supportedSitesLimit caps the extractor list returned to clients
const supportedSitesLimit = 50

// Extractor defines the operations the service needs from the extractor invoker
type Extractor interface {
	FetchMetadata(ctx context.Context, rawURL string) (*extractor.Metadata, error)
	Download(ctx context.Context, req extractor.Request, meta *extractor.Metadata, stage extractor.Stage) (*files.StagedFile, error)
	ListExtractors(ctx context.Context, limit int) ([]string, error)
}

// Service provides the info and download use cases
type Service struct {
	extractor Extractor
	stage     extractor.Stage
}

// NewService creates a new media service downloading into stage
func NewService(extractor Extractor, stage extractor.Stage) *Service {
	return &Service{
		extractor: extractor,
		stage:     stage,
	}
}

// InfoResult describes a remote media item
type InfoResult struct {
	Platform  string  `json:"platform"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  *string `json:"duration"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
}

// DownloadRequest represents a download request
type DownloadRequest struct {
	URL     string
	Format  string
	Quality string
}

// DownloadResult represents a staged download ready for retrieval
type DownloadResult struct {
	Title       string  `json:"title"`
	Thumbnail   string  `json:"thumbnail"`
	Format      string  `json:"format"`
	Quality     string  `json:"quality"`
	FileSize    string  `json:"fileSize"`
	DownloadURL string  `json:"downloadUrl"`
	Duration    *string `json:"duration"`
	Filename    string  `json:"filename"`
}

// SupportedSitesResult lists a sample of the extractors
type SupportedSitesResult struct {
	Count      int      `json:"count"`
	Extractors []string `json:"extractors"`
}

// Info fetches the metadata of url
func (s *Service) Info(ctx context.Context, rawURL string) (*InfoResult, error) {
	meta, err := s.extractor.FetchMetadata(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return &InfoResult{
		Platform:  DetectPlatform(rawURL),
		Title:     meta.Title,
		Thumbnail: meta.Thumbnail,
		Duration:  FormatDuration(meta.Duration),
		Uploader:  meta.Uploader,
		ViewCount: meta.ViewCount,
	}, nil
}

// Download resolves the metadata of the request URL, downloads it into
// the staging directory and returns the retrieval handle.
func (s *Service) Download(ctx context.Context, req *DownloadRequest) (*DownloadResult, error) {
	format, err := extractor.ParseFormat(req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	quality := req.Quality
	if quality == "" {
		quality = extractor.QualityBest
	}

	meta, err := s.extractor.FetchMetadata(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	file, err := s.extractor.Download(ctx, extractor.Request{
		URL:     req.URL,
		Format:  format,
		Quality: quality,
	}, meta, s.stage)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		Title:       meta.Title,
		Thumbnail:   meta.Thumbnail,
		Format:      string(format),
		Quality:     quality,
		FileSize:    humanize.IBytes(uint64(file.Size)),
		DownloadURL: FileRoute + url.PathEscape(file.Name),
		Duration:    FormatDuration(meta.Duration),
		Filename:    file.Name,
	}, nil
}

// SupportedSites returns the number of extractors and the first names
func (s *Service) SupportedSites(ctx context.Context) (*SupportedSitesResult, error) {
	extractors, err := s.extractor.ListExtractors(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractors: %w", err)
	}

	count := len(extractors)
	if count > supportedSitesLimit {
		extractors = extractors[:supportedSitesLimit]
	}

	return &SupportedSitesResult{
		Count:      count,
		Extractors: extractors,
	}, nil
}
