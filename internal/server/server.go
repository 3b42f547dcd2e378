package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/zoomstitch/internal/api"
	"github.com/kiesman99/zoomstitch/internal/stitcher"
	"github.com/kiesman99/zoomstitch/pkg/tile"
)

// cacheControl marks composed images as immutable; a page always yields the same image
const cacheControl = "public, max-age=31536000, immutable"

// ImageStitcher turns an artwork page into a full-resolution image
type ImageStitcher interface {
	Stitch(ctx context.Context, pageURL string) (*stitcher.Result, error)
}

// Server implements the ServerInterface from the api package
type Server struct {
	startTime time.Time
	version   string
	stitcher  ImageStitcher
}

// NewServer creates a new server instance
func NewServer(version string, st ImageStitcher) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		stitcher:  st,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Error("Error encoding health response")
	}
}

// GetImage implements the image endpoint
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request, params api.GetImageParams) {
	requestID := generateRequestID()
	pageURL := normalizePageURL(params.Url)
	logger := log.WithFields(log.Fields{"request_id": requestID, "page": pageURL})

	result, err := s.stitcher.Stitch(r.Context(), pageURL)
	if err != nil {
		logger.WithError(err).Warn("Stitching failed")
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.ImageData)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.ImageData); err != nil {
		logger.WithError(err).Error("Error writing response")
	}
}

// normalizePageURL undoes a second layer of percent-encoding.
// Clients that encode the page URL before building the query leave it encoded
// once more after the query itself is decoded.
func normalizePageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil || !strings.Contains(decoded, "://") {
		return raw
	}
	return decoded
}

// handleStitchingError handles errors from the stitching process
func (s *Server) handleStitchingError(w http.ResponseWriter, err error, requestID *string) {
	if stitcher.IsNotFound(err) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Request-ID", *requestID)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
		return
	}

	// Check if it's a tile-related error
	var tileErr *tile.TileError
	if errors.As(err, &tileErr) {
		failedTiles := make([]api.FailedTile, len(tileErr.FailedTiles))
		for i, ft := range tileErr.FailedTiles {
			failedTiles[i] = api.FailedTile{
				Error:      ft.Err.Error(),
				Kind:       ft.Kind,
				StatusCode: ft.StatusCode,
				Url:        ft.URL,
			}
		}

		response := api.TileErrorResponse{
			Error:           api.TILESERVERERROR,
			Message:         tileErr.Message,
			FailedTiles:     failedTiles,
			SuccessfulTiles: tileErr.SuccessfulTiles,
			TotalTiles:      tileErr.TotalTiles,
			RequestId:       requestID,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(response)
		return
	}

	if errors.Is(err, stitcher.ErrImageTooLarge) {
		s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, api.IMAGETOOLARGE,
			err.Error(), requestID, nil)
		return
	}

	// Check if it's a timeout error
	if errors.Is(err, context.DeadlineExceeded) {
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.TILESERVERTIMEOUT,
			"Tile server requests timed out", requestID, nil)
		return
	}

	// Generic internal server error
	s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
		"Internal server error", requestID, nil)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// writeParamError reports a missing or malformed query parameter
func (s *Server) writeParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := generateRequestID()
	details := map[string]interface{}{}

	var required *api.RequiredParamError
	var invalid *api.InvalidParamFormatError
	switch {
	case errors.As(err, &required):
		details["parameter"] = required.ParamName
	case errors.As(err, &invalid):
		details["parameter"] = invalid.ParamName
	}

	s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDPARAMETER, err.Error(), &requestID, details)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return "req_" + uuid.NewString()
}
