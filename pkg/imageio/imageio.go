// Package imageio loads wedge scans from disk and converts them to 8-bit gray.
package imageio

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Load decodes the image at path. PNG, JPEG, GIF, TIFF and BMP are supported.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	return img, nil
}

// LoadGray loads the image at path and converts it to 8-bit gray
func LoadGray(path string) (*image.Gray, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts img to *image.Gray. Gray images are returned as is; 16-bit
// gray keeps its high byte.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	if g16, ok := img.(*image.Gray16); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				gray.Pix[gray.PixOffset(x, y)] = uint8(g16.Gray16At(x, y).Y >> 8)
			}
		}
		return gray
	}

	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Save encodes img to path, choosing TIFF for .tif/.tiff and PNG otherwise
func Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return nil
}
