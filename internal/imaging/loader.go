package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/ftrvxmtrx/tga"
)

// dataURIPrefix marks an inline image source as produced by the browser's
// FileReader path.
const dataURIPrefix = "data:"

// Load decodes an image source. A source is either a data URI
// ("data:image/png;base64,...") or a filesystem path.
func Load(source string) (*image.NRGBA, error) {
	if strings.HasPrefix(source, dataURIPrefix) {
		return decodeDataURI(source)
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("imaging: read %s: %w", source, err)
	}
	img, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode %s: %w", source, err)
	}
	return img, nil
}

// Decode decodes raw image bytes as PNG, JPEG, or TGA. TGA carries no
// magic bytes, so each decoder is tried in turn instead of going through
// image.Decode's registry.
func Decode(raw []byte) (*image.NRGBA, error) {
	if img, err := png.Decode(bytes.NewReader(raw)); err == nil {
		return ToNRGBA(img), nil
	}
	if img, err := jpeg.Decode(bytes.NewReader(raw)); err == nil {
		return ToNRGBA(img), nil
	}
	if img, err := tga.Decode(bytes.NewReader(raw)); err == nil {
		return ToNRGBA(img), nil
	}
	return nil, fmt.Errorf("imaging: unrecognized image data")
}

func decodeDataURI(source string) (*image.NRGBA, error) {
	comma := strings.IndexByte(source, ',')
	if comma < 0 {
		return nil, fmt.Errorf("imaging: data URI missing payload")
	}
	meta := source[len(dataURIPrefix):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("imaging: unsupported data URI encoding %q", meta)
	}
	raw, err := base64.StdEncoding.DecodeString(source[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("imaging: data URI base64: %w", err)
	}
	img, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("imaging: data URI decode: %w", err)
	}
	return img, nil
}

// ToNRGBA converts any image to NRGBA format.
func ToNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src.(type) {
	case *image.YCbCr, *image.Gray:
		// No alpha channel in the source; force it opaque.
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 255
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := dst.PixOffset(x, y)
				dst.Pix[i] = c.R
				dst.Pix[i+1] = c.G
				dst.Pix[i+2] = c.B
				dst.Pix[i+3] = c.A
			}
		}
	}
	return dst
}
