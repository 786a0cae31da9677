package ocr

import (
	"fmt"

	"gocv.io/x/gocv"
)

// encodePNG serialises a Mat for Tesseract. Tesseract reads the PNG itself,
// so single-channel cells are passed through without conversion.
func encodePNG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
