package pipeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	r := image.Rect(20, 30, 70, 80)

	drawFace(img, r)

	for _, p := range []image.Point{
		{20, 30}, {70, 30}, {20, 80}, {70, 80}, // corners
		{45, 30}, {45, 80}, {20, 55}, {70, 55}, // edge midpoints
	} {
		assert.Equal(t, boxColor, img.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
	assert.NotEqual(t, boxColor, img.RGBAAt(45, 55), "interior untouched")
	assert.NotEqual(t, boxColor, img.RGBAAt(5, 5))
}

func TestDrawFace_ClipsAtImageEdge(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	assert.NotPanics(t, func() {
		drawFace(img, image.Rect(-10, -10, 60, 60))
		drawFace(img, image.Rect(5, 5, 6, 6))
	})
}

func TestDrawLabel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 100))
	drawLabel(img, 10, 60, "Alice")

	painted := 0
	for y := 30; y < 52; y++ {
		for x := 10; x < 10+7*5; x++ {
			if img.RGBAAt(x, y) == boxColor {
				painted++
			}
		}
	}
	assert.Positive(t, painted, "text is drawn above the box")

	for x := 0; x < 120; x++ {
		assert.NotEqual(t, boxColor, img.RGBAAt(x, 60), "nothing on the box top edge")
	}
}

func TestDrawLabel_NearTopStaysVisible(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 60, 40))
	drawLabel(img, 0, 2, "Bob")

	painted := 0
	for y := 0; y < 14; y++ {
		for x := 0; x < 21; x++ {
			if img.RGBAAt(x, y) == boxColor {
				painted++
			}
		}
	}
	assert.Positive(t, painted)
}
