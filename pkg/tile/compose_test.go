package tile

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/kiesman99/zoomstitch/internal/tiletest"
)

// fetchGrid plans src into tileSize crops and fetches them from a fake museum
func fetchGrid(t *testing.T, src image.Image, tileSize int, scale float64) (Grid, []Tile) {
	t.Helper()
	museum := tiletest.NewMuseum(src)
	t.Cleanup(museum.Close)
	museum.Scale = scale

	b := src.Bounds()
	grid, err := Plan(Extent{b.Dx(), b.Dy()}, tileSize)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	descs, err := BuildDescriptors(museum.ImageURL(), grid, scale)
	if err != nil {
		t.Fatalf("BuildDescriptors failed: %v", err)
	}
	tiles, err := FetchAll(context.Background(), NewHTTPFetcher(museum.Client(), TransportConfig{}), descs, FetchOptions{Concurrency: 4})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	return grid, tiles
}

func assertSameImage(t *testing.T, got, want image.Image) {
	t.Helper()
	if got.Bounds().Size() != want.Bounds().Size() {
		t.Fatalf("size: got %v, want %v", got.Bounds().Size(), want.Bounds().Size())
	}
	gb, wb := got.Bounds(), want.Bounds()
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			gr, gg, gbl, ga := got.At(gb.Min.X+x, gb.Min.Y+y).RGBA()
			wr, wg, wbl, wa := want.At(wb.Min.X+x, wb.Min.Y+y).RGBA()
			if gr != wr || gg != wg || gbl != wbl || ga != wa {
				t.Fatalf("pixel (%d,%d): got (%d,%d,%d,%d), want (%d,%d,%d,%d)", x, y, gr>>8, gg>>8, gbl>>8, ga>>8, wr>>8, wg>>8, wbl>>8, wa>>8)
			}
		}
	}
}

func TestCompose_ReassemblesSource(t *testing.T) {
	testCases := []struct {
		name          string
		width, height int
		tileSize      int
	}{
		{"exact multiple", 256, 256, 128},
		{"remainders", 275, 150, 128},
		{"single partial tile", 90, 40, 128},
		{"single column", 100, 300, 128},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := tiletest.Gradient(tc.width, tc.height)
			grid, tiles := fetchGrid(t, src, tc.tileSize, 1)

			out, err := Compose(grid, tiles)
			if err != nil {
				t.Fatalf("Compose failed: %v", err)
			}
			assertSameImage(t, out, src)
		})
	}
}

func TestCompose_ServedScale(t *testing.T) {
	src := tiletest.Gradient(275, 150)
	grid, tiles := fetchGrid(t, src, 128, 2)

	out, err := Compose(grid, tiles)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	want := imaging.Resize(src, 550, 300, imaging.NearestNeighbor)
	assertSameImage(t, out, want)
}

func TestCompose_OversizedTilesAreCropped(t *testing.T) {
	grid, err := Plan(Extent{150, 100}, 100)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	// the service rounded the first tile one pixel wider than requested
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}
	tiles := []Tile{
		{Descriptor: Descriptor{Index: 0, Row: 0, Col: 0}, Image: tiletest.Solid(101, 100, red)},
		{Descriptor: Descriptor{Index: 1, Row: 0, Col: 1}, Image: tiletest.Solid(50, 100, blue)},
	}

	out, err := Compose(grid, tiles)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	// (columns-1)*maxWidth + edge*ratio = 101 + 50
	if out.Bounds().Dx() != 151 || out.Bounds().Dy() != 100 {
		t.Fatalf("size: got %v, want 151x100", out.Bounds().Size())
	}
	if got := color.NRGBAModel.Convert(out.At(100, 50)); got != red {
		t.Errorf("pixel at 100: got %v, want red", got)
	}
	if got := color.NRGBAModel.Convert(out.At(101, 50)); got != blue {
		t.Errorf("pixel at 101: got %v, want blue", got)
	}
}

func TestCompose_PlacesByCoordinates(t *testing.T) {
	grid, _ := Plan(Extent{20, 10}, 10)
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	// delivered out of order
	tiles := []Tile{
		{Descriptor: Descriptor{Index: 1, Row: 0, Col: 1}, Image: tiletest.Solid(10, 10, blue)},
		{Descriptor: Descriptor{Index: 0, Row: 0, Col: 0}, Image: tiletest.Solid(10, 10, red)},
	}

	out, err := Compose(grid, tiles)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if got := color.NRGBAModel.Convert(out.At(0, 0)); got != red {
		t.Errorf("left tile: got %v, want red", got)
	}
	if got := color.NRGBAModel.Convert(out.At(15, 0)); got != blue {
		t.Errorf("right tile: got %v, want blue", got)
	}
}

func TestCompose_Rejects(t *testing.T) {
	grid, _ := Plan(Extent{20, 10}, 10)
	tileImg := tiletest.Solid(10, 10, color.White)

	testCases := []struct {
		name  string
		tiles []Tile
	}{
		{"missing tile", []Tile{{Descriptor: Descriptor{Row: 0, Col: 0}, Image: tileImg}}},
		{"nil image", []Tile{
			{Descriptor: Descriptor{Row: 0, Col: 0}, Image: tileImg},
			{Descriptor: Descriptor{Row: 0, Col: 1}},
		}},
		{"duplicate cell", []Tile{
			{Descriptor: Descriptor{Row: 0, Col: 0}, Image: tileImg},
			{Descriptor: Descriptor{Row: 0, Col: 0}, Image: tileImg},
		}},
		{"outside grid", []Tile{
			{Descriptor: Descriptor{Row: 0, Col: 0}, Image: tileImg},
			{Descriptor: Descriptor{Row: 1, Col: 0}, Image: tileImg},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compose(grid, tc.tiles); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEncodePNG_Idempotent(t *testing.T) {
	src := tiletest.Gradient(275, 150)
	grid, tiles := fetchGrid(t, src, 128, 1)

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		out, err := Compose(grid, tiles)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		data, err := EncodePNG(out)
		if err != nil {
			t.Fatalf("EncodePNG failed: %v", err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("composing the same tiles twice produced different bytes")
	}

	decoded, err := png.Decode(bytes.NewReader(outputs[0]))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	assertSameImage(t, decoded, src)
}

func TestDecode_Formats(t *testing.T) {
	img := tiletest.Solid(4, 3, color.White)

	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, img, imaging.JPEG); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"png", tiletest.EncodePNG(img)},
		{"jpeg", jpg.Bytes()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 3 {
				t.Errorf("size: got %v, want 4x3", out.Bounds().Size())
			}
		})
	}

	if _, err := Decode([]byte("<html>")); err != ErrUnknownFormat {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
