package vision

import (
	"errors"
	"image"
)

// ErrNoEmbedding is returned by EncodeFace when the crop yields no usable encoding.
var ErrNoEmbedding = errors.New("no embedding for face")

// BoundingBox is a face region in frame pixel coordinates.
type BoundingBox struct {
	X, Y, W, H int
	Confidence float32
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Embedding is a fixed-length face feature vector.
type Embedding []float32

// Comparison is the result of comparing a probe to one gallery entry.
type Comparison struct {
	Matched  bool
	Distance float32
}
