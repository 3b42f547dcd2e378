package tile

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when an image extent or tile size cannot be planned
var ErrInvalidDimensions = errors.New("invalid dimensions")

// Plan splits an image of the given extent into tileSize crops.
//
// The trailing column holds width mod tileSize pixels. When that remainder is
// zero the trailing column would be empty, so it is dropped and the previous
// column becomes the edge with a full tile width. Rows behave the same way.
func Plan(extent Extent, tileSize int) (Grid, error) {
	if tileSize <= 0 {
		return Grid{}, fmt.Errorf("%w: tile size %d", ErrInvalidDimensions, tileSize)
	}
	if extent.Width <= 0 || extent.Height <= 0 {
		return Grid{}, fmt.Errorf("%w: image extent %s", ErrInvalidDimensions, extent)
	}

	columns, edgeWidth := planAxis(extent.Width, tileSize)
	rows, edgeHeight := planAxis(extent.Height, tileSize)

	return Grid{
		TileSize:   tileSize,
		Columns:    columns,
		Rows:       rows,
		EdgeWidth:  edgeWidth,
		EdgeHeight: edgeHeight,
	}, nil
}

// planAxis returns the cell count and edge cell length along one axis
func planAxis(length, tileSize int) (int, int) {
	count := length/tileSize + 1
	edge := length % tileSize
	if edge == 0 {
		count--
		edge = tileSize
	}
	return count, edge
}

// Cell is one grid position with its crop size
type Cell struct {
	Row, Col      int
	Width, Height int
}

// Cells returns every cell of the grid in row-major order
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, g.Len())
	for i := 0; i < g.Rows; i++ {
		for j := 0; j < g.Columns; j++ {
			w, h := g.CellSize(i, j)
			cells = append(cells, Cell{Row: i, Col: j, Width: w, Height: h})
		}
	}
	return cells
}
