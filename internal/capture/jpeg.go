package capture

import (
	"bufio"
	"fmt"
	"io"
)

const maxFrameSize = 10 * 1024 * 1024

// jpegScanner splits a stream of concatenated JPEG images on the SOI (FF D8)
// and EOI (FF D9) markers.
type jpegScanner struct {
	r *bufio.Reader
}

func newJPEGScanner(r io.Reader) *jpegScanner {
	return &jpegScanner{r: bufio.NewReaderSize(r, 512*1024)}
}

// Next returns the next complete frame. io.EOF means no further frame; a
// frame truncated by the end of the stream is discarded.
func (s *jpegScanner) Next() ([]byte, error) {
	if err := s.findStart(); err != nil {
		return nil, err
	}
	data, err := s.readUntilEnd()
	if err == io.ErrUnexpectedEOF {
		return nil, io.EOF
	}
	return data, err
}

func (s *jpegScanner) findStart() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		// FF FF ... D8 is still a valid SOI sequence
		for b == 0xFF {
			if b, err = s.r.ReadByte(); err != nil {
				return err
			}
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func (s *jpegScanner) readUntilEnd() ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, eofAsUnexpected(err)
		}
		data = append(data, b)

		for b == 0xFF {
			if b, err = s.r.ReadByte(); err != nil {
				return nil, eofAsUnexpected(err)
			}
			data = append(data, b)
			if b == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}

func eofAsUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
