// Package codec encodes rendered tile images into their on-disk formats.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format identifies a tile image encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

var aliases = map[string]Format{
	"png":  PNG,
	"jpeg": JPEG,
	"jpg":  JPEG,
	"tiff": TIFF,
	"tif":  TIFF,
	"bmp":  BMP,
}

// ParseFormat resolves a configured format name, accepting common aliases.
func ParseFormat(name string) (Format, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	if f, ok := aliases[key]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported image format %q", name)
}

// Extension returns the file extension, including the leading dot.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tif"
	case "":
		return ""
	default:
		return "." + string(f)
	}
}

// SupportsAlpha reports whether the format preserves transparency.
func (f Format) SupportsAlpha() bool {
	return f != JPEG
}

// Encode compresses img into the requested format. Quality applies to JPEG
// only and is clamped to 1..100.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode %s: nil image", format)
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		err = enc.Encode(&buf, img)
	case JPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)})
	case TIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case BMP:
		err = bmp.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}
