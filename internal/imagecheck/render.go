package imagecheck

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Normalize returns JPEG bytes ready for a provider. JPEG input within the
// size bound passes through untouched; other supported types and oversized
// photos are decoded, flattened on white, downscaled and re-encoded.
func (d *Detector) Normalize(data []byte) ([]byte, *ImageInfo, error) {
	info := d.Detect(data)
	if !info.Supported {
		return nil, info, &UnsupportedError{MIMEType: info.MIMEType}
	}

	if !info.NeedsReencode {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, info, fmt.Errorf("failed to read JPEG header: %w", err)
		}
		if !d.oversized(cfg.Width, cfg.Height) {
			return data, info, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, info, fmt.Errorf("failed to decode %s: %w", info.MIMEType, err)
	}
	out, err := d.encode(img)
	if err != nil {
		return nil, info, err
	}
	log.Debug().
		Str("mime", info.MIMEType).
		Int("in_size", len(data)).
		Int("jpeg_size", len(out)).
		Int("quality", d.quality).
		Msg("re-encoded image as JPEG")
	return out, info, nil
}

func (d *Detector) oversized(w, h int) bool {
	return w > d.maxDimension || h > d.maxDimension
}

func (d *Detector) encode(src image.Image) ([]byte, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if d.oversized(w, h) {
		if w >= h {
			w, h = d.maxDimension, max(1, h*d.maxDimension/w)
		} else {
			w, h = max(1, w*d.maxDimension/h), d.maxDimension
		}
	}

	// JPEG has no alpha: flatten onto white, scaling in the same pass.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions extracts dimensions from image bytes without decoding pixels.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
