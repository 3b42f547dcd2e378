package tile

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/kiesman99/zoomstitch/internal/tiletest"
)

const baseURL = "https://images.example.org/art/77609.jpg"

func TestBuildDescriptors_RowMajor(t *testing.T) {
	grid, err := Plan(Extent{1100, 600}, 512)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	descs, err := BuildDescriptors(baseURL, grid, 1)
	if err != nil {
		t.Fatalf("BuildDescriptors failed: %v", err)
	}
	if len(descs) != 6 {
		t.Fatalf("descriptors: got %d, want 6", len(descs))
	}

	for i, d := range descs {
		row, col := i/grid.Columns, i%grid.Columns
		if d.Index != i || d.Row != row || d.Col != col {
			t.Errorf("descriptor %d: got index %d at (%d,%d), want (%d,%d)", i, d.Index, d.Row, d.Col, row, col)
		}
		w, h := grid.CellSize(row, col)
		if d.CropLeft != col*512 || d.CropTop != row*512 || d.CropWidth != w || d.CropHeight != h {
			t.Errorf("descriptor %d crop: got (%d,%d,%d,%d), want (%d,%d,%d,%d)",
				i, d.CropLeft, d.CropTop, d.CropWidth, d.CropHeight, col*512, row*512, w, h)
		}
		if d.RequestWidth != w || d.RequestHeight != h {
			t.Errorf("descriptor %d request: got %dx%d, want %dx%d", i, d.RequestWidth, d.RequestHeight, w, h)
		}
	}
}

func TestBuildDescriptors_ScaledRequests(t *testing.T) {
	grid, err := Plan(Extent{1100, 600}, 512)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	descs, err := BuildDescriptors(baseURL, grid, 1.5)
	if err != nil {
		t.Fatalf("BuildDescriptors failed: %v", err)
	}

	// interior
	if descs[0].RequestWidth != 768 || descs[0].RequestHeight != 768 {
		t.Errorf("interior request: got %dx%d, want 768x768", descs[0].RequestWidth, descs[0].RequestHeight)
	}
	// last column of the last row: ceil(76*1.5)=114, ceil(88*1.5)=132
	last := descs[len(descs)-1]
	if last.RequestWidth != 114 || last.RequestHeight != 132 {
		t.Errorf("edge request: got %dx%d, want 114x132", last.RequestWidth, last.RequestHeight)
	}
	// crop boxes are never scaled
	if last.CropWidth != 76 || last.CropHeight != 88 {
		t.Errorf("edge crop: got %dx%d, want 76x88", last.CropWidth, last.CropHeight)
	}
}

func TestBuildDescriptors_Scenarios(t *testing.T) {
	testCases := []struct {
		extent Extent
		want   int
	}{
		{Extent{1024, 1024}, 4},
		{Extent{1100, 600}, 6},
		{Extent{512, 512}, 1},
	}

	for _, tc := range testCases {
		grid, err := Plan(tc.extent, 512)
		if err != nil {
			t.Fatalf("Plan(%s) failed: %v", tc.extent, err)
		}
		descs, err := BuildDescriptors(baseURL, grid, 1)
		if err != nil {
			t.Fatalf("BuildDescriptors(%s) failed: %v", tc.extent, err)
		}
		if len(descs) != tc.want {
			t.Errorf("%s: got %d descriptors, want %d", tc.extent, len(descs), tc.want)
		}
	}
}

func TestBuildDescriptors_Invalid(t *testing.T) {
	grid, _ := Plan(Extent{100, 100}, 512)

	if _, err := BuildDescriptors("", grid, 1); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := BuildDescriptors(baseURL, grid, 0); err == nil {
		t.Error("expected error for zero ratio")
	}
	if _, err := BuildDescriptors(baseURL, Grid{}, 1); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions for empty grid, got %v", err)
	}
}

func TestDescriptorURL(t *testing.T) {
	d := Descriptor{
		SourceURL:     baseURL,
		CropLeft:      1024,
		CropTop:       512,
		CropWidth:     76,
		CropHeight:    88,
		RequestWidth:  114,
		RequestHeight: 132,
	}

	want := baseURL + "?w=114&h=132&cl=1024&ct=512&cw=76&ch=88"
	if got := d.URL(); got != want {
		t.Errorf("URL: got %s, want %s", got, want)
	}
}

func TestResolveScale(t *testing.T) {
	museum := tiletest.NewMuseum(tiletest.Solid(600, 600, color.White))
	defer museum.Close()
	museum.Scale = 2

	grid, _ := Plan(Extent{600, 600}, 512)
	fetcher := NewHTTPFetcher(museum.Client(), TransportConfig{})

	ratio, err := ResolveScale(context.Background(), fetcher, ProbeDescriptor(museum.ImageURL(), grid, DefaultProbeSize))
	if err != nil {
		t.Fatalf("ResolveScale failed: %v", err)
	}
	if ratio != 2 {
		t.Errorf("ratio: got %v, want 2", ratio)
	}
}

func TestResolveScale_Unavailable(t *testing.T) {
	museum := tiletest.NewMuseum(tiletest.Solid(600, 600, color.White))
	defer museum.Close()
	museum.FailTile = func(int, int) bool { return true }

	grid, _ := Plan(Extent{600, 600}, 512)
	fetcher := NewHTTPFetcher(museum.Client(), TransportConfig{})

	_, err := ResolveScale(context.Background(), fetcher, ProbeDescriptor(museum.ImageURL(), grid, DefaultProbeSize))
	if !errors.Is(err, ErrProbeUnavailable) {
		t.Errorf("expected ErrProbeUnavailable, got %v", err)
	}
}
