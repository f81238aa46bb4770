package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

var categoryColors = map[types.Category]color.NRGBA{
	types.Human:     {0, 200, 0, 255},
	types.Machinery: {255, 204, 0, 255},
	types.Equipment: {0, 170, 255, 255},
	types.Hazard:    {255, 0, 255, 255},
	types.Object:    {160, 160, 160, 255},
}

var dangerColor = color.NRGBA{255, 0, 0, 255}

// DrawOverlay renders detection boxes colored by category and a line between
// the centers of every flagged human-machinery pair
func (p *Processor) DrawOverlay(img image.Image, dets []types.CanonicalDetection, hazards []types.ProximityHazard) image.Image {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	for _, d := range dets {
		c, ok := categoryColors[d.Category]
		if !ok {
			c = categoryColors[types.Object]
		}
		drawBox(nrgba, d.BBox, c, stroke)
	}
	for _, hz := range hazards {
		if hz.IsDanger {
			drawLine(nrgba, hz.Human.Center, hz.Machine.Center, dangerColor, stroke)
		}
	}
	return nrgba
}

func drawBox(img *image.NRGBA, box types.Box, c color.NRGBA, stroke int) {
	x0, y0 := int(box.X), int(box.Y)
	x1, y1 := int(box.X+box.Width), int(box.Y+box.Height)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawLine(img *image.NRGBA, a, b types.Point, c color.NRGBA, stroke int) {
	steps := int(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(a.X + (b.X-a.X)*t)
		y := int(a.Y + (b.Y-a.Y)*t)
		drawHLine(img, y, x-stroke/2, x+stroke/2+1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, 0), min(x1, img.Bounds().Dx())
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
	y0, y1 = max(y0, 0), min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
