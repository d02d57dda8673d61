// Package imaging normalizes uploaded item photos and derives perceptual
// fingerprints used by the image similarity provider.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 1024

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// MaxUploadBytes caps a single uploaded photo.
const MaxUploadBytes = 10 << 20

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Photo is a normalized image ready for storage.
type Photo struct {
	Data []byte
	MIME string
}

// Process validates an upload by sniffing its bytes, downscales it to
// MaxDimension and re-encodes it as JPEG.
func Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("image larger than %d bytes", MaxUploadBytes)
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(img, MaxDimension), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

func decode(data []byte) (image.Image, error) {
	if mime := http.DetectContentType(data); !AllowedMIME[mime] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG, PNG and WebP accepted)", mime)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// fit shrinks img so neither side exceeds maxDim, keeping the aspect ratio.
func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	if w > h {
		w, h = maxDim, max(1, h*maxDim/w)
	} else {
		w, h = max(1, w*maxDim/h), maxDim
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Fingerprint is a 64-bit difference hash of an image. Visually similar
// images have fingerprints with a small Hamming distance.
type Fingerprint uint64

// NewFingerprint decodes an image and computes its difference hash: the
// image is reduced to a 9x8 grayscale grid and each bit records whether a
// pixel is brighter than its right neighbour.
func NewFingerprint(data []byte) (Fingerprint, error) {
	img, err := decode(data)
	if err != nil {
		return 0, err
	}

	grid := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.ApproxBiLinear.Scale(grid, grid.Bounds(), img, img.Bounds(), draw.Src, nil)

	var fp Fingerprint
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			fp <<= 1
			if brightness(grid.GrayAt(x, y)) > brightness(grid.GrayAt(x+1, y)) {
				fp |= 1
			}
		}
	}
	return fp, nil
}

func brightness(c color.Gray) int { return int(c.Y) }

// Distance returns the number of differing bits between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// Similarity maps the Hamming distance to a 0-100 score.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	return 100 * (1 - float64(f.Distance(other))/64)
}
