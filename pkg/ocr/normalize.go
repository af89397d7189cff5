package ocr

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// maxDimension bounds the normalized image; larger photos are scaled down,
// smaller ones are never upscaled.
const maxDimension = 1920

// CropRegion is an optional region of interest applied before normalization.
// A zero X means the caller already cropped the image and the step is skipped.
type CropRegion struct {
	X, Y          int
	Width, Height int
}

// NormalizeImage applies the fixed preprocessing sequence tuned for folio
// recognition: crop (optional), fit within maxDimension, grayscale, contrast
// stretch, sharpen, brightness lift. The transform is pure; any failure is
// terminal and never retried.
func NormalizeImage(path string, crop *CropRegion) (*image.NRGBA, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image processing failed: %w", err)
	}
	img := imaging.Clone(src)
	if crop != nil && crop.X != 0 && crop.Width > 0 && crop.Height > 0 {
		img = imaging.Crop(img, image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height))
	}
	b := img.Bounds()
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}
	img = imaging.Grayscale(img)
	img = stretchContrast(img)
	img = imaging.Sharpen(img, 0.8)
	img = imaging.AdjustBrightness(img, 10)
	return img, nil
}

// SaveNormalized writes the normalized image; format follows the extension
// (PNG for the OCR input, JPEG for the persisted copy).
func SaveNormalized(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("image processing failed: %w", err)
	}
	return nil
}

// stretchContrast expands the luminance histogram so the darkest pixel maps
// to 0 and the brightest to 255. Input is already grayscale so a single
// channel read suffices.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	lo, hi := 255, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := int(img.NRGBAAt(x, y).R)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return img
	}
	out := imaging.Clone(img)
	scale := 255.0 / float64(hi-lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := out.NRGBAAt(x, y)
			v := uint8(float64(int(px.R)-lo) * scale)
			px.R, px.G, px.B = v, v, v
			out.SetNRGBA(x, y, px)
		}
	}
	return out
}
