// Package imaging normalizes captured screenshots for transport.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Output formats
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// ErrUndecodable is returned by Normalize when the input is not an image.
var ErrUndecodable = errors.New("failed to decode capture")

var placeholderGrey = color.RGBA{R: 100, G: 100, B: 100, A: 255}

// Options bounds and encodes a screenshot.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // 1-100, lossy formats only
	Format    string
}

// Image is a normalized, encoded image.
type Image struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// CanonicalFormat maps a requested format name onto a supported output format.
func CanonicalFormat(name string) (string, error) {
	switch strings.ToLower(name) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", name)
	}
}

// Normalize decodes raw, shrinks it to fit inside MaxWidth x MaxHeight
// preserving aspect ratio, and re-encodes it. Images are never enlarged.
func Normalize(raw []byte, opts Options) (*Image, error) {
	format, err := CanonicalFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	bounds := src.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	var out image.Image = src
	if width != bounds.Dx() || height != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		err = enc.Encode(&buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}

	return &Image{
		Data:   buf.Bytes(),
		Width:  width,
		Height: height,
		Format: format,
	}, nil
}

// FitWithin returns the largest size not exceeding maxW x maxH that keeps the
// aspect ratio of w x h. Non-positive bounds disable the corresponding limit.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return w, h
	}

	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	if maxW > 0 && nw > maxW {
		nw = maxW
	}
	if maxH > 0 && nh > maxH {
		nh = maxH
	}
	return nw, nh
}

// Placeholder returns a PNG-encoded solid image used when every capture path fails.
func Placeholder(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderGrey}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	// Encoding an in-memory RGBA cannot fail.
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
