package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solidJPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// gradientPNG draws a horizontal gradient, bright on the left when
// descending is true.
func gradientPNG(w, h int, descending bool) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		v := uint8(x * 255 / (w - 1))
		if descending {
			v = 255 - v
		}
		for y := 0; y < h; y++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestProcessJPEG(t *testing.T) {
	photo, err := Process(bytes.NewReader(solidJPEG(100, 100, color.RGBA{255, 0, 0, 255})))
	if err != nil {
		t.Fatalf("Process JPEG: %v", err)
	}
	if photo.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", photo.MIME)
	}
	if len(photo.Data) == 0 {
		t.Error("expected non-empty data")
	}
}

func TestProcessPNGReencoded(t *testing.T) {
	photo, err := Process(bytes.NewReader(gradientPNG(64, 32, false)))
	if err != nil {
		t.Fatalf("Process PNG: %v", err)
	}
	if photo.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", photo.MIME)
	}
}

func TestProcessDownscale(t *testing.T) {
	photo, err := Process(bytes.NewReader(solidJPEG(2048, 1024, color.White)))
	if err != nil {
		t.Fatalf("Process large image: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(photo.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got := img.Bounds(); got.Dx() != MaxDimension || got.Dy() != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, got.Dx(), got.Dy())
	}
}

func TestProcessRejectsOtherFormats(t *testing.T) {
	for _, data := range [][]byte{[]byte("not an image"), []byte("GIF89a...")} {
		if _, err := Process(bytes.NewReader(data)); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}

func TestFingerprintIdentical(t *testing.T) {
	a, err := NewFingerprint(gradientPNG(200, 100, false))
	if err != nil {
		t.Fatalf("NewFingerprint: %v", err)
	}
	b, err := NewFingerprint(gradientPNG(400, 200, false))
	if err != nil {
		t.Fatalf("NewFingerprint: %v", err)
	}
	if d := a.Distance(b); d > 4 {
		t.Errorf("rescaled image distance = %d, want <= 4", d)
	}
	if a.Similarity(a) != 100 {
		t.Errorf("self similarity = %v, want 100", a.Similarity(a))
	}
}

func TestFingerprintDiffers(t *testing.T) {
	a, _ := NewFingerprint(gradientPNG(200, 100, false))
	b, _ := NewFingerprint(gradientPNG(200, 100, true))
	if a.Similarity(b) >= 50 {
		t.Errorf("opposite gradients similarity = %v, want < 50", a.Similarity(b))
	}
	if a.Distance(b) != b.Distance(a) {
		t.Error("distance is not symmetric")
	}
}
