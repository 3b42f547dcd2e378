// Package page talks to museum collection pages: it scrapes the deep-zoom
// image address from an artwork page and resolves the image dimensions.
package page

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	_ "github.com/gen2brain/webp" // Register WebP format decoder

	"github.com/kiesman99/zoomstitch/pkg/tile"
)

// ogImagePattern matches the share image tag, whose URL carries the
// 1000x1000 preview parameters the deep-zoom service understands.
var ogImagePattern = regexp.MustCompile(`<meta\s+property="og:image"\s+content="([^"?]+)\?w=1000&(?:amp;)?h=1000`)

// imageExtensions are replaced by .json to find the dimension resource
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Client fetches pages and image metadata
type Client struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// NewClient creates a page client. A nil client is built from cfg.
func NewClient(client *http.Client, cfg tile.TransportConfig) *Client {
	if client == nil {
		client = tile.NewHTTPClient(cfg)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = tile.DefaultUserAgent
	}
	return &Client{
		client:    client,
		userAgent: userAgent,
		headers:   cfg.Headers,
	}
}

// FetchHTML downloads the page at pageURL
func (c *Client) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid page URL %q: scheme must be http or https", pageURL)
	}

	body, err := tile.Get(ctx, c.client, pageURL, c.userAgent, c.headers)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ExtractImageURL returns the deep-zoom base image URL announced by the page.
// The second result is false when the page carries no matching tag.
func ExtractImageURL(htmlText string) (string, bool) {
	match := ogImagePattern.FindStringSubmatch(htmlText)
	if match == nil {
		return "", false
	}
	return html.UnescapeString(match[1]), true
}

type imageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProbeDimensions resolves the full image size.
//
// The sibling JSON resource is tried first; if it is missing or unusable the
// full image is requested and only its header is decoded. On failure the
// returned extent is tile.UnknownExtent.
func (c *Client) ProbeDimensions(ctx context.Context, imageURL string) (tile.Extent, error) {
	extent, jsonErr := c.probeInfo(ctx, imageURL)
	if jsonErr == nil {
		return extent, nil
	}

	extent, err := c.probeHeader(ctx, imageURL)
	if err != nil {
		return tile.UnknownExtent, fmt.Errorf("probe %s: info: %v; header: %w", imageURL, jsonErr, err)
	}
	return extent, nil
}

func (c *Client) probeInfo(ctx context.Context, imageURL string) (tile.Extent, error) {
	infoURL, err := InfoURL(imageURL)
	if err != nil {
		return tile.UnknownExtent, err
	}

	body, err := tile.Get(ctx, c.client, infoURL, c.userAgent, c.headers)
	if err != nil {
		return tile.UnknownExtent, err
	}

	var info imageInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return tile.UnknownExtent, fmt.Errorf("decode %s: %w", infoURL, err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return tile.UnknownExtent, fmt.Errorf("%s reports %dx%d", infoURL, info.Width, info.Height)
	}
	return tile.Extent{Width: info.Width, Height: info.Height}, nil
}

func (c *Client) probeHeader(ctx context.Context, imageURL string) (tile.Extent, error) {
	body, err := tile.Get(ctx, c.client, imageURL, c.userAgent, c.headers)
	if err != nil {
		return tile.UnknownExtent, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return tile.UnknownExtent, fmt.Errorf("decode header: %w", err)
	}
	return tile.Extent{Width: cfg.Width, Height: cfg.Height}, nil
}

// InfoURL returns the JSON dimension resource next to an image URL
func InfoURL(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, known := range imageExtensions {
		if ext == known {
			u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path)) + ".json"
			u.RawPath = ""
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("no image extension in %s", imageURL)
}
