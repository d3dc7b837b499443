package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var boxColor = color.RGBA{R: 246, G: 92, B: 138, A: 255}

const (
	boxThickness = 2
	labelOffset  = 10
)

// drawFace outlines r with a rectangle and corner brackets of length min(w,h)/5.
func drawFace(img *image.RGBA, r image.Rectangle) {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y

	hline(img, x0, x1, y0)
	hline(img, x0, x1, y1)
	vline(img, x0, y0, y1)
	vline(img, x1, y0, y1)

	c := min(r.Dx(), r.Dy()) / 5
	if c <= 0 {
		return
	}
	hline(img, x0, x0+c, y0)
	vline(img, x0, y0, y0+c)
	hline(img, x1-c, x1, y0)
	vline(img, x1, y0, y0+c)
	hline(img, x0, x0+c, y1)
	vline(img, x0, y1-c, y1)
	hline(img, x1-c, x1, y1)
	vline(img, x1, y1-c, y1)
}

func hline(img *image.RGBA, x0, x1, y int) {
	fill(img, image.Rect(x0, y-boxThickness/2, x1+1, y-boxThickness/2+boxThickness))
}

func vline(img *image.RGBA, x, y0, y1 int) {
	fill(img, image.Rect(x-boxThickness/2, y0, x-boxThickness/2+boxThickness, y1+1))
}

func fill(img *image.RGBA, r image.Rectangle) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(boxColor), image.Point{}, draw.Src)
}

// drawLabel writes text with its baseline labelOffset pixels above (x, y).
func drawLabel(img *image.RGBA, x, y int, text string) {
	baseline := y - labelOffset
	if baseline < basicfont.Face7x13.Ascent {
		baseline = basicfont.Face7x13.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}
