// Package prep holds the fixed chains of image primitives that surround the
// detection stages: edge-map preparation before quadrilateral detection and
// cleanup of the rectified page before table extraction.
package prep

import (
	"image"

	"gocv.io/x/gocv"
)

// Params configures the preprocessing chains.
type Params struct {
	BlurSize  int     // Gaussian kernel size (odd)
	BlurSigma float64 // Gaussian sigma X

	// Non-local means settings for the edge-map chain.
	DenoiseH        float32
	DenoiseTemplate int
	DenoiseSearch   int

	CannyLow  float32
	CannyHigh float32

	// Non-local means settings for the post-rectification cleanup.
	CleanH        float32
	CleanTemplate int
	CleanSearch   int

	Sharpen bool
}

// DefaultParams returns the settings the pipeline was tuned with on
// photographed, typed lists.
func DefaultParams() Params {
	return Params{
		BlurSize:  3,
		BlurSigma: 2.0,

		DenoiseH:        11,
		DenoiseTemplate: 31,
		DenoiseSearch:   9,

		CannyLow:  50,
		CannyHigh: 150,

		CleanH:        10,
		CleanTemplate: 7,
		CleanSearch:   21,

		Sharpen: true,
	}
}

// EdgeResult holds the outputs of EdgeMap. Both Mats are owned by the caller.
type EdgeResult struct {
	Edges    gocv.Mat // Canny edge map for quadrilateral detection
	Denoised gocv.Mat // Denoised binary page, the image that gets rectified
}

// Close releases both Mats.
func (r *EdgeResult) Close() {
	r.Edges.Close()
	r.Denoised.Close()
}

// EdgeMap converts a photo to grayscale, blurs, Otsu-binarises, denoises and
// runs Canny on it.
func EdgeMap(img gocv.Mat, p Params) EdgeResult {
	gray := Grayscale(img)
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: p.BlurSize, Y: p.BlurSize}, p.BlurSigma, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	Otsu(blurred, &binary)

	denoised := gocv.NewMat()
	gocv.FastNlMeansDenoisingWithParams(binary, &denoised, p.DenoiseH, p.DenoiseTemplate, p.DenoiseSearch)

	edges := gocv.NewMat()
	gocv.Canny(denoised, &edges, p.CannyLow, p.CannyHigh)

	return EdgeResult{Edges: edges, Denoised: denoised}
}

// Clean denoises, re-binarises and optionally sharpens a rectified page.
// The returned Mat is owned by the caller.
func Clean(img gocv.Mat, p Params) gocv.Mat {
	gray := Grayscale(img)
	defer gray.Close()

	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.FastNlMeansDenoisingWithParams(gray, &denoised, p.CleanH, p.CleanTemplate, p.CleanSearch)

	binary := gocv.NewMat()
	Otsu(denoised, &binary)
	if !p.Sharpen {
		return binary
	}
	defer binary.Close()

	kernel := sharpeningKernel()
	defer kernel.Close()

	sharpened := gocv.NewMat()
	gocv.Filter2D(binary, &sharpened, -1, kernel, image.Point{X: -1, Y: -1}, 0, gocv.BorderDefault)
	return sharpened
}

// Grayscale returns a single-channel copy of img.
func Grayscale(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// Otsu binarises src into dst with an automatically chosen threshold.
func Otsu(src gocv.Mat, dst *gocv.Mat) {
	gocv.Threshold(src, dst, 128, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
}

// sharpeningKernel returns the 3x3 Laplacian sharpening kernel
//
//	 0 -1  0
//	-1  5 -1
//	 0 -1  0
func sharpeningKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	values := [3][3]float32{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			k.SetFloatAt(r, c, values[r][c])
		}
	}
	return k
}
