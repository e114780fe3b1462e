package preprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	upscale          = 2
	contrastFactor   = 2.5
	brightnessFactor = 1.2
	// contrast re-applied after adaptive binarization
	postThresholdContrast = 2.0
)

// sharpenKernel is the classic 3×3 SHARPEN filter (centre 32, ring -2, sum 16).
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// contrastSharpen targets faint strokes: upscale, stretch contrast, sharpen twice and lift
// brightness a little.
func contrastSharpen(img image.Image) (image.Image, error) {
	b := img.Bounds()
	out := imaging.Resize(img, b.Dx()*upscale, b.Dy()*upscale, imaging.Lanczos)
	out = imaging.AdjustContrast(out, contrastPercent(contrastFactor))
	for i := 0; i < 2; i++ {
		out = imaging.Convolve3x3(out, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
	}
	return brighten(out, brightnessFactor), nil
}

// contrastPercent maps a multiplicative contrast factor (1 = unchanged) onto imaging's
// percentage scale, where p in (0,100) stretches around mid-grey by 1/(1-p/100).
func contrastPercent(factor float64) float64 {
	if factor <= 1 {
		return (factor - 1) * 100
	}
	return 100 * (1 - 1/factor)
}

// brighten scales every colour channel by factor, clamping at white.
func brighten(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: scaleChannel(c.R, factor),
			G: scaleChannel(c.G, factor),
			B: scaleChannel(c.B, factor),
			A: c.A,
		}
	})
}

func scaleChannel(v uint8, factor float64) uint8 {
	f := float64(v)*factor + 0.5
	if f > 255 {
		return 255
	}
	return uint8(f)
}
