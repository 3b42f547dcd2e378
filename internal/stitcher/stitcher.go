package stitcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/zoomstitch/internal/page"
	"github.com/kiesman99/zoomstitch/pkg/tile"
)

// Options contains all stitching parameters
type Options struct {
	TileSize    int
	ProbeSize   int
	Concurrency int
	TileTimeout time.Duration
	// MaxPixels bounds the composed image area; zero disables the check
	MaxPixels int64
	Transport tile.TransportConfig
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		TileSize:    tile.DefaultTileSize,
		ProbeSize:   tile.DefaultProbeSize,
		Concurrency: 8,
		TileTimeout: 30 * time.Second,
		MaxPixels:   20000 * 20000,
		Transport: tile.TransportConfig{
			UserAgent: tile.DefaultUserAgent,
			Timeout:   60 * time.Second,
		},
	}
}

// PageSource resolves artwork pages and image dimensions
type PageSource interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
	ProbeDimensions(ctx context.Context, imageURL string) (tile.Extent, error)
}

// Plan is everything known about an image before its tiles are fetched
type Plan struct {
	ImageURL    string
	Extent      tile.Extent
	Grid        tile.Grid
	Ratio       float64
	Descriptors []tile.Descriptor
}

// Result contains the stitching result
type Result struct {
	ImageData []byte
	ImageURL  string
	Width     int
	Height    int
	Plan      *Plan
}

// Stitcher performs tile stitching operations
type Stitcher struct {
	opts    Options
	pages   PageSource
	fetcher tile.Fetcher
}

// New creates a stitcher whose page and tile requests share one HTTP client
func New(opts Options) *Stitcher {
	return NewWithClient(opts, tile.NewHTTPClient(opts.Transport))
}

// NewWithClient creates a stitcher using the given HTTP client
func NewWithClient(opts Options, client *http.Client) *Stitcher {
	return NewWithSources(opts, page.NewClient(client, opts.Transport), tile.NewHTTPFetcher(client, opts.Transport))
}

// NewWithSources creates a stitcher from explicit collaborators
func NewWithSources(opts Options, pages PageSource, fetcher tile.Fetcher) *Stitcher {
	defaults := DefaultOptions()
	if opts.TileSize <= 0 {
		opts.TileSize = defaults.TileSize
	}
	if opts.ProbeSize <= 0 {
		opts.ProbeSize = defaults.ProbeSize
	}
	return &Stitcher{
		opts:    opts,
		pages:   pages,
		fetcher: fetcher,
	}
}

// Stitch downloads the full-resolution image announced by an artwork page
func (s *Stitcher) Stitch(ctx context.Context, pageURL string) (*Result, error) {
	imageURL, err := s.ResolveImage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.StitchImage(ctx, imageURL)
}

// ResolveImage returns the deep-zoom base image URL of an artwork page
func (s *Stitcher) ResolveImage(ctx context.Context, pageURL string) (string, error) {
	htmlText, err := s.pages.FetchHTML(ctx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %s: %v", ErrPageFetchFailed, pageURL, err)
	}

	imageURL, ok := page.ExtractImageURL(htmlText)
	if !ok {
		log.WithField("page", pageURL).Info("No deep-zoom image on page")
		return "", fmt.Errorf("%w: %s", ErrPageNotMatched, pageURL)
	}

	log.WithFields(log.Fields{"page": pageURL, "image": imageURL}).Debug("Resolved deep-zoom image")
	return imageURL, nil
}

// Plan probes the image and builds its tile descriptors without fetching tiles
func (s *Stitcher) Plan(ctx context.Context, imageURL string) (*Plan, error) {
	extent, err := s.pages.ProbeDimensions(ctx, imageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).WithField("image", imageURL).Warn("Dimension probe failed")
	}

	grid, err := tile.Plan(extent, s.opts.TileSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDimensionProbeFailed, imageURL, err)
	}

	ratio, err := tile.ResolveScale(ctx, s.fetcher, tile.ProbeDescriptor(imageURL, grid, s.opts.ProbeSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).WithField("image", imageURL).Warn("Scale probe failed, assuming 1:1 tiles")
		ratio = 1
	}

	if s.opts.MaxPixels > 0 {
		pixels := float64(extent.Width) * float64(extent.Height) * ratio * ratio
		if pixels > float64(s.opts.MaxPixels) {
			return nil, fmt.Errorf("%w: %s at scale %.3g", ErrImageTooLarge, extent, ratio)
		}
	}

	descs, err := tile.BuildDescriptors(imageURL, grid, ratio)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"image":  imageURL,
		"extent": extent.String(),
		"grid":   grid.String(),
		"ratio":  ratio,
		"tiles":  len(descs),
	}).Info("Planned tile grid")

	return &Plan{
		ImageURL:    imageURL,
		Extent:      extent,
		Grid:        grid,
		Ratio:       ratio,
		Descriptors: descs,
	}, nil
}

// StitchImage fetches every tile of a deep-zoom image and composes them into a PNG
func (s *Stitcher) StitchImage(ctx context.Context, imageURL string) (*Result, error) {
	plan, err := s.Plan(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tiles, err := tile.FetchAll(ctx, s.fetcher, plan.Descriptors, tile.FetchOptions{
		Concurrency: s.opts.Concurrency,
		TileTimeout: s.opts.TileTimeout,
	})
	if err != nil {
		var tileErr *tile.TileError
		if errors.As(err, &tileErr) {
			log.WithFields(log.Fields{
				"image":  imageURL,
				"failed": len(tileErr.FailedTiles),
				"total":  tileErr.TotalTiles,
			}).WithError(err).Error("Tile download failed")
		}
		return nil, err
	}

	img, err := tile.Compose(plan.Grid, tiles)
	if err != nil {
		return nil, fmt.Errorf("failed to compose image: %w", err)
	}

	data, err := tile.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output image: %w", err)
	}

	bounds := img.Bounds()
	log.WithFields(log.Fields{
		"image":   imageURL,
		"size":    fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		"bytes":   len(data),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Stitched image")

	return &Result{
		ImageData: data,
		ImageURL:  imageURL,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Plan:      plan,
	}, nil
}
