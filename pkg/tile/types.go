package tile

import (
	"fmt"
	"image"
	"strings"
)

// DefaultTileSize is the nominal edge length of a requested crop
const DefaultTileSize = 512

// DefaultProbeSize is the output size requested for the scale probe tile
const DefaultProbeSize = 2000

// Extent holds the pixel dimensions of the full source image
type Extent struct {
	Width  int
	Height int
}

// UnknownExtent is returned by dimension probes that could not resolve a size
var UnknownExtent = Extent{Width: -1, Height: -1}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Grid describes how an image is split into crops.
//
// Columns and Rows count only non-degenerate cells. EdgeWidth and EdgeHeight
// are the true sizes of the last column and row; they equal TileSize when the
// image dimension is an exact multiple of it.
type Grid struct {
	TileSize   int
	Columns    int
	Rows       int
	EdgeWidth  int
	EdgeHeight int
}

// Len returns the number of cells in the grid
func (g Grid) Len() int {
	return g.Columns * g.Rows
}

// CellSize returns the crop size of the cell at (row, col)
func (g Grid) CellSize(row, col int) (int, int) {
	w, h := g.TileSize, g.TileSize
	if col == g.Columns-1 {
		w = g.EdgeWidth
	}
	if row == g.Rows-1 {
		h = g.EdgeHeight
	}
	return w, h
}

// Extent returns the image size the grid covers
func (g Grid) Extent() Extent {
	return Extent{
		Width:  (g.Columns-1)*g.TileSize + g.EdgeWidth,
		Height: (g.Rows-1)*g.TileSize + g.EdgeHeight,
	}
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@%d (edge %dx%d)", g.Columns, g.Rows, g.TileSize, g.EdgeWidth, g.EdgeHeight)
}

// Descriptor identifies one tile request.
//
// Index is the row-major position in the grid; Row and Col are carried
// explicitly so placement never depends on iteration order.
type Descriptor struct {
	Index         int
	Row, Col      int
	SourceURL     string
	CropLeft      int
	CropTop       int
	CropWidth     int
	CropHeight    int
	RequestWidth  int
	RequestHeight int
}

// URL renders the tile request URL
func (d Descriptor) URL() string {
	var b strings.Builder
	b.WriteString(d.SourceURL)
	fmt.Fprintf(&b, "?w=%d&h=%d&cl=%d&ct=%d&cw=%d&ch=%d",
		d.RequestWidth, d.RequestHeight, d.CropLeft, d.CropTop, d.CropWidth, d.CropHeight)
	return b.String()
}

// Tile is a decoded tile together with its descriptor
type Tile struct {
	Descriptor
	Image image.Image
}
