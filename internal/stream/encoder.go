package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Encoder turns annotated frames into multipart/x-mixed-replace chunks.
type Encoder struct {
	boundary string
	quality  int
}

func NewEncoder(boundary string, quality int) *Encoder {
	return &Encoder{boundary: boundary, quality: quality}
}

// ContentType is the HTTP content type of a response made of this encoder's chunks.
func (e *Encoder) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + e.boundary
}

// Encode JPEG-encodes img and wraps it in one multipart chunk.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	data, err := EncodeJPEG(img, e.quality)
	if err != nil {
		return nil, err
	}
	return e.Chunk(data), nil
}

// Chunk wraps already encoded JPEG bytes.
func (e *Encoder) Chunk(jpegData []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(jpegData) + len(e.boundary) + 48)
	buf.WriteString("--")
	buf.WriteString(e.boundary)
	buf.WriteString("\r\nContent-Type: image/jpeg\r\n\r\n")
	buf.Write(jpegData)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
