package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{1920, 1080, 1024, 768, 1024, 576},
		{1080, 1920, 1024, 768, 432, 768},
		{800, 600, 1024, 768, 800, 600},
		{2048, 1536, 1024, 768, 1024, 768},
		{3000, 10, 1024, 768, 1024, 3},
		{500, 500, 0, 0, 500, 500},
	}
	for _, tc := range cases {
		w, h := FitWithin(tc.w, tc.h, tc.maxW, tc.maxH)
		assert.Equal(t, tc.wantW, w, "%dx%d in %dx%d", tc.w, tc.h, tc.maxW, tc.maxH)
		assert.Equal(t, tc.wantH, h, "%dx%d in %dx%d", tc.w, tc.h, tc.maxW, tc.maxH)
	}
}

func TestNormalizeDimensionsMatchDecodedImage(t *testing.T) {
	raw := encodePNG(t, 1600, 1000)

	img, err := Normalize(raw, Options{MaxWidth: 800, MaxHeight: 600, Quality: 50, Format: "jpeg"})
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, img.Format)
	assert.Equal(t, 800, img.Width)
	assert.Equal(t, 500, img.Height)

	decodedBytes, err := base64.StdEncoding.DecodeString(img.Base64())
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(decodedBytes))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, img.Width, cfg.Width)
	assert.Equal(t, img.Height, cfg.Height)
}

func TestNormalizePNGKeepsSmallImages(t *testing.T) {
	img, err := Normalize(encodePNG(t, 40, 30), Options{MaxWidth: 1024, MaxHeight: 768, Format: "png"})
	require.NoError(t, err)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)
	assert.Equal(t, FormatPNG, img.Format)
}

func TestNormalizeRejectsUnknownFormat(t *testing.T) {
	_, err := Normalize(encodePNG(t, 4, 4), Options{Format: "tiff"})
	assert.Error(t, err)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("not an image"), Options{Format: "jpeg"})
	assert.Error(t, err)
}

func TestPlaceholderIsDecodable(t *testing.T) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(Placeholder(800, 600)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}
