// Package imagecheck sniffs uploaded photos and normalizes them to JPEG.
package imagecheck

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// ImageInfo contains detected image type information
type ImageInfo struct {
	MIMEType      string
	Extension     string
	Supported     bool
	NeedsReencode bool
	Description   string
}

// UnsupportedError is returned for anything that is not a supported photo.
type UnsupportedError struct {
	MIMEType string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported image type: %s", e.MIMEType)
}

// Detector handles image detection using magic bytes and re-encoding to JPEG.
type Detector struct {
	maxDimension int
	quality      int
}

// Option customizes a Detector.
type Option func(*Detector)

// WithMaxDimension bounds the longest side of the output; larger photos are downscaled.
func WithMaxDimension(px int) Option {
	return func(d *Detector) {
		if px > 0 {
			d.maxDimension = px
		}
	}
}

// WithQuality sets the JPEG quality used when re-encoding (1-100).
func WithQuality(q int) Option {
	return func(d *Detector) {
		if q > 0 && q <= 100 {
			d.quality = q
		}
	}
}

// New creates a detector. Defaults: 2048px longest side, quality 85.
func New(opts ...Option) *Detector {
	d := &Detector{maxDimension: 2048, quality: 85}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect detects the actual image type using magic bytes, not the filename
func (d *Detector) Detect(data []byte) *ImageInfo {
	mtype := mimetype.Detect(data)
	info := &ImageInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Bool("supported", info.Supported).Msg("detected image type")
	return info
}

// DetectFile detects the type of a file on disk.
func (d *Detector) DetectFile(path string) (*ImageInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &ImageInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	return info, nil
}

func (d *Detector) classify(info *ImageInfo) {
	switch info.MIMEType {
	case "image/jpeg":
		info.Supported = true
		info.Description = "JPEG photo"
	case "image/png":
		info.Supported, info.NeedsReencode = true, true
		info.Description = "PNG image"
	case "image/gif":
		info.Supported, info.NeedsReencode = true, true
		info.Description = "GIF image (first frame)"
	case "image/webp":
		info.Supported, info.NeedsReencode = true, true
		info.Description = "WebP image"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
