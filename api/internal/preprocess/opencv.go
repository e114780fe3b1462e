package preprocess

import (
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

const (
	adaptiveBlockSize = 11
	adaptiveC         = 2

	nlmStrength       = 10
	nlmColorStrength  = 10
	nlmTemplateWindow = 7
	nlmSearchWindow   = 21

	claheClipLimit = 3.0
	claheTileGrid  = 8

	morphThreshold = 127
	morphKernel    = 2
)

var errEmptyMat = errors.New("opencv returned an empty matrix")

// adaptiveThreshold binarizes against a Gaussian-weighted neighbourhood instead of one global
// cut-off, because CAPTCHA backgrounds are unevenly shaded.
func adaptiveThreshold(img image.Image) (image.Image, error) {
	gray, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.AdaptiveThreshold(gray, &bin, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, adaptiveBlockSize, adaptiveC)

	out, err := matToImage(bin)
	if err != nil {
		return nil, err
	}
	return imaging.AdjustContrast(out, contrastPercent(postThresholdContrast)), nil
}

// denoiseCLAHEOtsu: NLM-шумодав, затем CLAHE и порог Оцу.
func denoiseCLAHEOtsu(img image.Image) (image.Image, error) {
	rgba, keep, err := rgbaMat(img)
	if err != nil {
		return nil, err
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	runtime.KeepAlive(keep)

	den := gocv.NewMat()
	defer den.Close()
	gocv.FastNlMeansDenoisingColoredWithParams(bgr, &den, nlmStrength, nlmColorStrength, nlmTemplateWindow, nlmSearchWindow)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(den, &gray, gocv.ColorBGRToGray)

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileGrid, claheTileGrid))
	defer clahe.Close()
	eq := gocv.NewMat()
	defer eq.Close()
	clahe.Apply(gray, &eq)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(eq, &bin, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	return matToImage(bin)
}

// morphology is for touching glyphs. Closing fills gaps inside a glyph, opening drops specks;
// dilate > 0 adds a final dilation.
func morphology(dilate int) Transform {
	return func(img image.Image) (image.Image, error) {
		gray, err := grayMat(img)
		if err != nil {
			return nil, err
		}
		defer gray.Close()

		bin := gocv.NewMat()
		defer bin.Close()
		gocv.Threshold(gray, &bin, morphThreshold, 255, gocv.ThresholdBinary)

		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(morphKernel, morphKernel))
		defer kernel.Close()

		closed := gocv.NewMat()
		defer closed.Close()
		gocv.MorphologyEx(bin, &closed, gocv.MorphClose, kernel)

		opened := gocv.NewMat()
		defer opened.Close()
		gocv.MorphologyEx(closed, &opened, gocv.MorphOpen, kernel)

		if dilate <= 0 {
			return matToImage(opened)
		}
		dk := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(dilate, dilate))
		defer dk.Close()
		dilated := gocv.NewMat()
		defer dilated.Close()
		gocv.Dilate(opened, &dilated, dk)
		return matToImage(dilated)
	}
}

// rgbaMat wraps the image pixels as a 4-channel Mat. The returned NRGBA owns the pixel
// memory and must stay reachable while the Mat is in use.
func rgbaMat(img image.Image) (gocv.Mat, *image.NRGBA, error) {
	n := imaging.Clone(img)
	b := n.Bounds()
	if b.Empty() {
		return gocv.Mat{}, nil, fmt.Errorf("empty image")
	}
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, n.Pix)
	if err != nil {
		return gocv.Mat{}, nil, fmt.Errorf("mat from image: %w", err)
	}
	return m, n, nil
}

func grayMat(img image.Image) (gocv.Mat, error) {
	rgba, keep, err := rgbaMat(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgba.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(rgba, &gray, gocv.ColorRGBAToGray)
	runtime.KeepAlive(keep)
	if gray.Empty() {
		gray.Close()
		return gocv.Mat{}, errEmptyMat
	}
	return gray, nil
}

func matToImage(m gocv.Mat) (image.Image, error) {
	if m.Empty() {
		return nil, errEmptyMat
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return img, nil
}
