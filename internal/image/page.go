// Package image loads photographed pages and writes pipeline output images.
package image

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

// Load decodes an image file into a 3-channel BGR Mat owned by the caller.
// JPEG, PNG and TIFF are supported.
func Load(path string) (gocv.Mat, error) {
	file, err := os.Open(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %w", err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("decoded image %s is empty", path)
	}
	return mat, nil
}

// Save writes a Mat to path; the format follows the file extension.
func Save(path string, mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("refusing to write empty image to %s", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// OutputPath returns "<dir>/<base>_<suffix>.png" for an input file. An empty
// dir places the output next to the input.
func OutputPath(input, dir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+"_"+suffix+".png")
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
