package sensitivity

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// frameScore holds the pixel statistics and derived suspicion for one
// sampled frame.
type frameScore struct {
	Brightness float64 // mean luminance, 0-255
	Contrast   float64 // mean per-channel standard deviation
	Suspicion  float64 // [0,1]
}

// Scoring thresholds on the 0-255 pixel scale.
const (
	darkBrightness   = 50
	brightBrightness = 200
	highContrast     = 80
	highSuspicion    = 0.6
)

// scoreFrame decodes one frame image and derives its suspicion score:
// +0.1 for extreme brightness, +0.1 for high contrast, plus the
// injected perturbation, capped at 1.0.
func scoreFrame(path string, perturb func() float64) (frameScore, error) {
	f, err := os.Open(path)
	if err != nil {
		return frameScore{}, fmt.Errorf("open frame: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return frameScore{}, fmt.Errorf("decode frame: %w", err)
	}

	brightness, contrast := pixelStats(img)

	suspicion := 0.0
	if brightness < darkBrightness || brightness > brightBrightness {
		suspicion += 0.1
	}
	if contrast > highContrast {
		suspicion += 0.1
	}
	suspicion += perturb()
	if suspicion > 1.0 {
		suspicion = 1.0
	}

	return frameScore{
		Brightness: brightness,
		Contrast:   contrast,
		Suspicion:  suspicion,
	}, nil
}

// pixelStats computes mean luminance and the mean per-channel standard
// deviation over all pixels, on a 0-255 scale.
func pixelStats(img image.Image) (brightness, contrast float64) {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return 0, 0
	}

	var sumR, sumG, sumB, sumLum float64
	var sumR2, sumG2, sumB2 float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			sumR += r
			sumG += g
			sumB += b
			sumR2 += r * r
			sumG2 += g * g
			sumB2 += b * b
			sumLum += 0.299*r + 0.587*g + 0.114*b
		}
	}

	brightness = sumLum / n

	stddev := func(sum, sum2 float64) float64 {
		mean := sum / n
		variance := sum2/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		return math.Sqrt(variance)
	}
	contrast = (stddev(sumR, sumR2) + stddev(sumG, sumG2) + stddev(sumB, sumB2)) / 3

	return brightness, contrast
}
