// Package tiletest provides an in-process museum site serving a deep-zoom
// image, for use in tests.
package tiletest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// Paths served by Museum
const (
	PagePath  = "/entity/OBJECT/77609"
	ImagePath = "/images/77609.jpg"
	InfoPath  = "/images/77609.json"
)

// Museum is a fake collection site with one artwork
type Museum struct {
	*httptest.Server

	Source image.Image
	// Scale is applied to every served crop
	Scale float64
	// NoTag serves a page without the og:image meta tag
	NoTag bool
	// NoInfo makes the JSON dimension resource return 404
	NoInfo bool
	// FailTile returns true for crops that should answer 500
	FailTile func(cropLeft, cropTop int) bool
	// CorruptTile returns true for crops that should answer undecodable bytes
	CorruptTile func(cropLeft, cropTop int) bool

	tileRequests atomic.Int64
	pageRequests atomic.Int64
}

// NewMuseum starts a museum serving src at scale 1
func NewMuseum(src image.Image) *Museum {
	m := &Museum{Source: src, Scale: 1}
	mux := http.NewServeMux()
	mux.HandleFunc(PagePath, m.servePage)
	mux.HandleFunc(ImagePath, m.serveImage)
	mux.HandleFunc(InfoPath, m.serveInfo)
	m.Server = httptest.NewServer(mux)
	return m
}

// PageURL is the artwork page address
func (m *Museum) PageURL() string {
	return m.URL + PagePath
}

// ImageURL is the base deep-zoom image address
func (m *Museum) ImageURL() string {
	return m.URL + ImagePath
}

// TileRequests returns the number of cropped tile requests served
func (m *Museum) TileRequests() int {
	return int(m.tileRequests.Load())
}

// PageRequests returns the number of page requests served
func (m *Museum) PageRequests() int {
	return int(m.pageRequests.Load())
}

func (m *Museum) servePage(w http.ResponseWriter, r *http.Request) {
	m.pageRequests.Add(1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><head>\n<title>Artwork</title>\n")
	if !m.NoTag {
		fmt.Fprintf(w, "<meta property=\"og:image\" content=\"%s?w=1000&amp;h=1000&amp;cl=0\" />\n", m.ImageURL())
	}
	fmt.Fprint(w, "</head><body></body></html>\n")
}

func (m *Museum) serveInfo(w http.ResponseWriter, r *http.Request) {
	if m.NoInfo {
		http.NotFound(w, r)
		return
	}
	b := m.Source.Bounds()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"width": b.Dx(), "height": b.Dy()})
}

func (m *Museum) serveImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("cw") == "" {
		writePNG(w, m.Source)
		return
	}
	m.tileRequests.Add(1)

	cl, _ := strconv.Atoi(q.Get("cl"))
	ct, _ := strconv.Atoi(q.Get("ct"))
	cw, _ := strconv.Atoi(q.Get("cw"))
	ch, _ := strconv.Atoi(q.Get("ch"))

	if m.FailTile != nil && m.FailTile(cl, ct) {
		http.Error(w, "tile failed", http.StatusInternalServerError)
		return
	}
	if m.CorruptTile != nil && m.CorruptTile(cl, ct) {
		w.Write([]byte("not an image"))
		return
	}

	crop := imaging.Crop(m.Source, image.Rect(cl, ct, cl+cw, ct+ch))
	if m.Scale != 1 {
		sw := int(math.Round(float64(crop.Bounds().Dx()) * m.Scale))
		sh := int(math.Round(float64(crop.Bounds().Dy()) * m.Scale))
		crop = imaging.Resize(crop, sw, sh, imaging.NearestNeighbor)
	}
	writePNG(w, crop)
}

func writePNG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// Gradient returns an opaque image whose pixels encode their own coordinates
func Gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8((x/256)<<4 | (y / 256)), A: 255})
		}
	}
	return img
}

// Solid returns an image filled with c
func Solid(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// EncodePNG encodes img, panicking on failure
func EncodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
