package compositor

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// Format selects the export encoding.
type Format string

const (
	// FormatPNG is the lossless export encoding.
	FormatPNG Format = "png"
	// FormatJPEG is the lossy export encoding at a fixed quality.
	FormatJPEG Format = "jpg"
	// FormatWebP is a second lossless encoding.
	FormatWebP Format = "webp"
)

// DefaultJPEGQuality matches the fixed ~0.9 quality of the original export.
const DefaultJPEGQuality = 90

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png", "":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("compositor: unknown format %q", s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

type encoder func(w io.Writer, img image.Image, quality int) error

func encoderFor(f Format) (encoder, error) {
	switch f {
	case FormatPNG:
		return func(w io.Writer, img image.Image, _ int) error {
			return png.Encode(w, img)
		}, nil
	case FormatJPEG:
		return func(w io.Writer, img image.Image, quality int) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		}, nil
	case FormatWebP:
		return func(w io.Writer, img image.Image, _ int) error {
			return nativewebp.Encode(w, img, nil)
		}, nil
	default:
		return nil, fmt.Errorf("compositor: unknown format %q", f)
	}
}

// Encode writes img in the requested format. Quality applies to JPEG only;
// zero means DefaultJPEGQuality.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	enc, err := encoderFor(f)
	if err != nil {
		return err
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	if err := enc(w, img, quality); err != nil {
		return fmt.Errorf("compositor: encode %s: %w", f, err)
	}
	return nil
}
