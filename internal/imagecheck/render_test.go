package imagecheck

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeJPEGPassesThrough(t *testing.T) {
	data := encodeJPEG(t, solid(40, 30, color.RGBA{R: 200, A: 255}))
	out, info, err := New().Normalize(data)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if info.MIMEType != "image/jpeg" || info.NeedsReencode {
		t.Fatalf("unexpected info %+v", info)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("JPEG within bounds should be returned unchanged")
	}
}

func TestNormalizePNGBecomesJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(20, 10, color.RGBA{G: 255, A: 128})); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	out, info, err := New(WithQuality(70)).Normalize(buf.Bytes())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if info.MIMEType != "image/png" {
		t.Fatalf("mime = %s", info.MIMEType)
	}
	if got := New().Detect(out).MIMEType; got != "image/jpeg" {
		t.Fatalf("output mime = %s", got)
	}
	w, h, err := Dimensions(out)
	if err != nil || w != 20 || h != 10 {
		t.Fatalf("dimensions = %dx%d, %v", w, h, err)
	}
}

func TestNormalizeGIF(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 8, 8), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	out, _, err := New().Normalize(buf.Bytes())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := New().Detect(out).MIMEType; got != "image/jpeg" {
		t.Fatalf("output mime = %s", got)
	}
}

func TestNormalizeDownscalesLargeJPEG(t *testing.T) {
	data := encodeJPEG(t, solid(400, 100, color.White))
	out, _, err := New(WithMaxDimension(100)).Normalize(data)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	w, h, err := Dimensions(out)
	if err != nil || w != 100 || h != 25 {
		t.Fatalf("dimensions = %dx%d, %v", w, h, err)
	}
}

func TestNormalizeRejectsNonImages(t *testing.T) {
	for name, data := range map[string][]byte{
		"pdf":  []byte("%PDF-1.4\n1 0 obj\n"),
		"text": []byte("hola, esto no es una foto"),
	} {
		_, info, err := New().Normalize(data)
		var ue *UnsupportedError
		if !errors.As(err, &ue) {
			t.Fatalf("%s: expected UnsupportedError, got %v", name, err)
		}
		if info.Supported {
			t.Fatalf("%s: info marked supported", name)
		}
	}
}

func TestNormalizeCorruptJPEG(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	if _, _, err := New().Normalize(data); err == nil {
		t.Fatal("expected error for truncated JPEG")
	}
}

func TestDetectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plato.bin")
	if err := os.WriteFile(path, encodeJPEG(t, solid(4, 4, color.Black)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := New().DetectFile(path)
	if err != nil {
		t.Fatalf("DetectFile returned error: %v", err)
	}
	if info.MIMEType != "image/jpeg" || !info.Supported {
		t.Fatalf("unexpected info %+v", info)
	}
}
