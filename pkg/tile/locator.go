package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrProbeUnavailable is returned when the served tile size could not be determined
var ErrProbeUnavailable = errors.New("scale probe unavailable")

// BuildDescriptors returns one descriptor per grid cell in row-major order.
//
// Every cell requests its crop scaled by ratio, rounded up. Interior cells
// therefore all request the same scaled tile size and only the last column
// and row differ.
func BuildDescriptors(baseURL string, grid Grid, ratio float64) ([]Descriptor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("empty base image URL")
	}
	if grid.Len() == 0 || grid.TileSize <= 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidDimensions)
	}
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, fmt.Errorf("invalid scale ratio %v", ratio)
	}

	descs := make([]Descriptor, 0, grid.Len())
	for idx, cell := range grid.Cells() {
		descs = append(descs, Descriptor{
			Index:         idx,
			Row:           cell.Row,
			Col:           cell.Col,
			SourceURL:     baseURL,
			CropLeft:      cell.Col * grid.TileSize,
			CropTop:       cell.Row * grid.TileSize,
			CropWidth:     cell.Width,
			CropHeight:    cell.Height,
			RequestWidth:  scaledSize(cell.Width, grid.TileSize, ratio),
			RequestHeight: scaledSize(cell.Height, grid.TileSize, ratio),
		})
	}
	return descs, nil
}

// scaledSize scales a cell length, treating a zero length as a full tile
func scaledSize(length, tileSize int, ratio float64) int {
	if length == 0 {
		length = tileSize
	}
	return int(math.Ceil(float64(length) * ratio))
}

// ProbeDescriptor returns the descriptor for cell (0,0) requested at probeSize
func ProbeDescriptor(baseURL string, grid Grid, probeSize int) Descriptor {
	w, h := grid.CellSize(0, 0)
	return Descriptor{
		SourceURL:     baseURL,
		CropWidth:     w,
		CropHeight:    h,
		RequestWidth:  probeSize,
		RequestHeight: probeSize,
	}
}

// ResolveScale fetches the probe tile and returns served/requested crop height.
// Any failure is reported as ErrProbeUnavailable.
func ResolveScale(ctx context.Context, fetcher Fetcher, probe Descriptor) (float64, error) {
	if probe.CropHeight <= 0 {
		return 0, fmt.Errorf("%w: empty probe crop", ErrProbeUnavailable)
	}

	data, err := fetcher.Fetch(ctx, probe)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: decode probe header: %v", ErrProbeUnavailable, err)
	}
	if cfg.Height <= 0 {
		return 0, fmt.Errorf("%w: probe served %dx%d", ErrProbeUnavailable, cfg.Width, cfg.Height)
	}

	return float64(cfg.Height) / float64(probe.CropHeight), nil
}
