package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// Compose paints the tiles onto a single canvas and crops it to the image extent.
//
// Tiles may be served slightly larger or smaller than requested, so every cell
// on the canvas is sized to the largest decoded tile. The last row and column
// are then trimmed to their true scaled size.
func Compose(grid Grid, tiles []Tile) (image.Image, error) {
	if grid.Len() == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidDimensions)
	}
	if len(tiles) != grid.Len() {
		return nil, fmt.Errorf("expected %d tiles, got %d", grid.Len(), len(tiles))
	}

	maxWidth, maxHeight := 0, 0
	seen := make([]bool, grid.Len())
	for i, t := range tiles {
		if t.Image == nil {
			return nil, fmt.Errorf("tile %d has no image", i)
		}
		if t.Row < 0 || t.Row >= grid.Rows || t.Col < 0 || t.Col >= grid.Columns {
			return nil, fmt.Errorf("tile %d at (%d,%d) outside %s grid", i, t.Row, t.Col, grid)
		}
		pos := t.Row*grid.Columns + t.Col
		if seen[pos] {
			return nil, fmt.Errorf("duplicate tile at (%d,%d)", t.Row, t.Col)
		}
		seen[pos] = true

		b := t.Image.Bounds()
		maxWidth = max(maxWidth, b.Dx())
		maxHeight = max(maxHeight, b.Dy())
	}
	if maxWidth == 0 || maxHeight == 0 {
		return nil, fmt.Errorf("%w: all tiles are empty", ErrInvalidDimensions)
	}

	canvas := imaging.New(maxWidth*grid.Columns, maxHeight*grid.Rows, color.Transparent)
	for _, t := range tiles {
		b := t.Image.Bounds()
		at := image.Pt(t.Col*maxWidth, t.Row*maxHeight)
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(b.Size())}, t.Image, b.Min, draw.Src)
	}

	r := cropRatio(grid, maxWidth, maxHeight)
	width := cropLength(grid.Columns, maxWidth, grid.EdgeWidth, r)
	height := cropLength(grid.Rows, maxHeight, grid.EdgeHeight, r)

	return imaging.Crop(canvas, image.Rect(0, 0, width, height)), nil
}

// cropRatio measures the served scale, preferring a full-height row.
// A single partial cell is measured against its own crop height.
func cropRatio(grid Grid, maxWidth, maxHeight int) float64 {
	ts := float64(grid.TileSize)
	switch {
	case grid.Rows > 1 || grid.EdgeHeight == grid.TileSize:
		return float64(maxHeight) / ts
	case grid.Columns > 1 || grid.EdgeWidth == grid.TileSize:
		return float64(maxWidth) / ts
	}
	return float64(maxHeight) / float64(grid.EdgeHeight)
}

// cropLength returns the canvas length along one axis, clamped to the canvas
func cropLength(count, cell, edge int, ratio float64) int {
	n := (count-1)*cell + int(math.Round(float64(edge)*ratio))
	return min(max(n, 1), count*cell)
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var output bytes.Buffer
	if err := imaging.Encode(&output, img, imaging.PNG); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}
