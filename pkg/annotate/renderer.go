package annotate

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"geodetect/internal/utils"
	"geodetect/pkg/geo"
	"geodetect/pkg/types"
)

// DefaultLineWidth is used when the configured stroke is missing or invalid.
const DefaultLineWidth = 2

// classColors is the fixed per-class palette; ids outside it fall back to gray.
var classColors = map[int]color.NRGBA{
	0: {255, 0, 0, 255},   // abnormal
	1: {0, 255, 0, 255},   // normal
	2: {0, 0, 255, 255},
	3: {0, 255, 255, 255},
	4: {255, 0, 255, 255},
	5: {255, 255, 0, 255},
}

var defaultColor = color.NRGBA{128, 128, 128, 255}

// Options controls how detections are drawn onto the output frame.
type Options struct {
	ShowLabels bool
	ShowConf   bool
	LineWidth  int
}

// Render draws the detections onto a copy of the source raster and writes
// it as <outFolder>/<base>_annotated.jpg, suffixing _<n> on collision.
// Annotation is a best-effort side product: the caller logs a warning on
// error and the file-level result is unaffected.
func Render(dets []types.Detection, imagePath, outFolder string, labels map[int]string, opts Options) error {
	if err := utils.EnsureDir(outFolder); err != nil {
		return fmt.Errorf("create annotated folder: %w", err)
	}

	src, err := imaging.Open(imagePath)
	if err != nil {
		return fmt.Errorf("load image for annotation: %w", err)
	}
	canvas := imaging.Clone(src)

	stroke := opts.LineWidth
	if stroke <= 0 {
		stroke = DefaultLineWidth
	}

	for _, det := range dets {
		c, ok := classColors[det.ClassID]
		if !ok {
			c = defaultColor
		}

		x1, y1 := int(det.Box[0]), int(det.Box[1])
		x2, y2 := int(det.Box[2]), int(det.Box[3])
		drawRect(canvas, x1, y1, x2, y2, c, stroke)

		label := labelText(geo.ClassLabel(labels, det.ClassID), det.Confidence, opts)
		if label != "" {
			drawLabel(canvas, label, x1, y1, c)
		}
	}

	base := utils.StripExt(filepath.Base(imagePath))
	outPath := utils.NextFreePath(outFolder, base+"_annotated", ".jpg")
	if err := imaging.Save(canvas, outPath, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save annotated frame: %w", err)
	}
	return nil
}

// labelText composes the box caption from the display flags: label and
// confidence, one of them, or nothing at all.
func labelText(className string, confidence float64, opts Options) string {
	switch {
	case opts.ShowLabels && opts.ShowConf:
		return fmt.Sprintf("%s: %.2f", className, confidence)
	case opts.ShowLabels:
		return className
	case opts.ShowConf:
		return fmt.Sprintf("%.2f", confidence)
	}
	return ""
}

// drawLabel renders the caption above the box corner on a filled background
// rectangle so it stays legible over busy imagery.
func drawLabel(img *image.NRGBA, label string, x, y int, bg color.NRGBA) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	textHeight := face.Metrics().Height.Ceil()

	fillRect(img, x, y-textHeight-6, x+textWidth+4, y, bg)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.P(x+2, y-5),
	}
	d.DrawString(label)
}

func drawRect(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y1+s, x1, x2, c)
		drawHLine(img, y2-1-s, x1, x2, c)
		drawVLine(img, x1+s, y1, y2, c)
		drawVLine(img, x2-1-s, y1, y2, c)
	}
}

func fillRect(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA) {
	for y := y1; y < y2; y++ {
		drawHLine(img, y, x1, x2, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
