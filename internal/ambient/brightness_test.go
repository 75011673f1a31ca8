package ambient

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMeanBrightness_PNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.RGBA{R: 0, G: 0, B: 45, A: 255})

	got, err := MeanBrightness(encodePNG(t, img))
	require.NoError(t, err)
	// (255 + 0 + 0 + 0 + 0 + 45) / 6
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestMeanBrightness_ExtremeValues(t *testing.T) {
	black := image.NewGray(image.Rect(0, 0, 4, 4))
	got, err := MeanBrightness(encodePNG(t, black))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	white := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	got, err = MeanBrightness(encodePNG(t, white))
	require.NoError(t, err)
	assert.Equal(t, 255.0, got)
}

func TestMeanBrightness_CorruptData(t *testing.T) {
	_, err := MeanBrightness([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = MeanBrightness(nil)
	assert.Error(t, err)
}
