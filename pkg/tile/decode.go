package tile

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
)

// ErrUnknownFormat is returned for tile bytes that are not PNG, JPEG or WebP
var ErrUnknownFormat = errors.New("unrecognized image format")

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// Decode detects the tile format from its magic bytes and decodes it
func Decode(data []byte) (image.Image, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return png.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, jpegMagic):
		return jpeg.Decode(bytes.NewReader(data))
	case isWebP(data):
		return webp.Decode(bytes.NewReader(data))
	}
	return nil, ErrUnknownFormat
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic)
}
