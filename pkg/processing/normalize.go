package processing

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalized describes the outcome of validating and normalizing a raster
// before inference. When a conversion was needed, TempPath points at a
// freshly written canonical-format sibling file; deleting it is the
// caller's responsibility on every exit path.
type Normalized struct {
	Width    int
	Height   int
	Mode     string
	TempPath string
}

// Converted reports whether a temporary canonical copy was written.
func (n Normalized) Converted() bool {
	return n.TempPath != ""
}

// Normalize validates that the raster at path is decodable and ensures the
// pixel data downstream consumers see is in the canonical 3-channel form.
// Palette, grayscale, alpha-carrying and other non-standard modes are
// converted and written as <base>_temp_rgb.jpg next to the source; an
// already-canonical image passes through untouched with TempPath empty.
//
// Unreadable, truncated or zero-byte files return an error instead of
// panicking; the orchestrator records the file as failed and moves on.
func Normalize(path string) (Normalized, error) {
	img, err := LoadImage(path)
	if err != nil {
		return Normalized{}, fmt.Errorf("decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	n := Normalized{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Mode:   colorMode(img),
	}

	if n.Mode == "RGB" {
		return n, nil
	}

	tempPath := stripExt(path) + "_temp_rgb.jpg"
	if err := imaging.Save(imaging.Clone(img), tempPath, imaging.JPEGQuality(95)); err != nil {
		return Normalized{}, fmt.Errorf("write canonical copy: %w", err)
	}
	n.Mode = "RGB"
	n.TempPath = tempPath
	return n, nil
}

// LoadImage decodes a raster with the registered decoders, falling back to
// an explicit WebP decode for files the standard path rejects. The native
// decoder is used directly so the original color mode survives decoding.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, _, err := image.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// colorMode classifies a decoded image the way raster tooling names pixel
// modes. Only JPEG-style YCbCr data counts as the canonical 3-channel form;
// everything else goes through a conversion pass.
func colorMode(img image.Image) string {
	switch img.(type) {
	case *image.YCbCr:
		return "RGB"
	case *image.Gray, *image.Gray16:
		return "L"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.NYCbCrA:
		return "RGBA"
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return "RGBA"
	default:
		return "unknown"
	}
}

func stripExt(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndexAny(path, "/\\") {
		return path[:i]
	}
	return path
}
