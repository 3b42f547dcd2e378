package stitcher

import "errors"

var (
	// ErrPageFetchFailed is returned when the artwork page cannot be downloaded
	ErrPageFetchFailed = errors.New("page fetch failed")
	// ErrPageNotMatched is returned when the page has no deep-zoom image tag
	ErrPageNotMatched = errors.New("page has no deep-zoom image")
	// ErrDimensionProbeFailed is returned when the image size cannot be resolved
	ErrDimensionProbeFailed = errors.New("dimension probe failed")
	// ErrImageTooLarge is returned when the composed image would exceed Options.MaxPixels
	ErrImageTooLarge = errors.New("requested image size too large")
)

// IsNotFound reports whether err means the page does not lead to a usable image
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPageFetchFailed) ||
		errors.Is(err, ErrPageNotMatched) ||
		errors.Is(err, ErrDimensionProbeFailed)
}
