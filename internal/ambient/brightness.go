package ambient

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"gonum.org/v1/gonum/stat"
)

// MeanBrightness decodes a JPEG or PNG and returns the mean of every R, G and
// B sample on a 0-255 scale. Alpha is ignored.
func MeanBrightness(data []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return 0, fmt.Errorf("decode snapshot: empty image")
	}

	// Every row holds the same number of samples, so the mean of the row
	// means is the mean over all samples.
	row := make([]float64, 0, b.Dx()*3)
	rowMeans := make([]float64, 0, b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row = row[:0]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			row = append(row, float64(r>>8), float64(g>>8), float64(bl>>8))
		}
		rowMeans = append(rowMeans, stat.Mean(row, nil))
	}
	return stat.Mean(rowMeans, nil), nil
}
