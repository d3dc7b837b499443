package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/config"
)

// Frame is one JPEG-encoded image from the camera.
type Frame struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Source yields frames in capture order. Next returns io.EOF once the source
// is exhausted; any other error is a capture failure. Close is idempotent.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Open starts the capture source described by cfg.
func Open(ctx context.Context, cfg config.CameraConfig) (Source, error) {
	input := cfg.Source
	if cfg.Type == "youtube" {
		slog.Info("resolving youtube camera", "source", cfg.Source, "max_width", cfg.Width)
		resolved, err := ResolveYouTubeURL(ctx, cfg.Source, cfg.Width)
		if err != nil {
			return nil, fmt.Errorf("resolve youtube: %w", err)
		}
		input = resolved
	}
	return StartFFmpeg(ctx, ffmpegArgs(cfg.Type, input, cfg.FPS, cfg.Width))
}

// streamSource turns a byte stream of concatenated JPEGs into a pull-based
// Source. A background goroutine scans frames and hands them over one at a time.
type streamSource struct {
	frames chan Frame
	done   chan struct{}
	err    error // valid once frames is closed

	stop      func()
	closeOnce sync.Once
}

// NewReaderSource reads concatenated JPEG images from r. Closing the source
// closes r.
func NewReaderSource(r io.ReadCloser) Source {
	ctx, cancel := context.WithCancel(context.Background())
	return newStreamSource(ctx, r, r.Close, func() {
		cancel()
		_ = r.Close()
	})
}

// newStreamSource scans r until EOF or ctx is done. finish runs once scanning
// stops; its error turns a clean EOF into a capture failure.
func newStreamSource(ctx context.Context, r io.Reader, finish func() error, stop func()) *streamSource {
	s := &streamSource{
		frames: make(chan Frame),
		done:   make(chan struct{}),
		stop:   stop,
	}
	go s.scan(ctx, r, finish)
	return s
}

func (s *streamSource) scan(ctx context.Context, r io.Reader, finish func() error) {
	defer close(s.done)
	defer close(s.frames)

	sc := newJPEGScanner(r)
	var seq uint64
	for {
		data, err := sc.Next()
		if err != nil {
			ferr := finish()
			switch {
			case ctx.Err() != nil:
				s.err = io.EOF
			case err != io.EOF:
				s.err = fmt.Errorf("read frames: %w", err)
			case ferr != nil:
				s.err = fmt.Errorf("capture exited: %w", ferr)
			default:
				s.err = io.EOF
			}
			return
		}

		seq++
		select {
		case s.frames <- Frame{Seq: seq, Data: data, CapturedAt: time.Now()}:
		case <-ctx.Done():
			_ = finish()
			s.err = io.EOF
			return
		}
	}
}

func (s *streamSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return Frame{}, s.err
		}
		return f, nil
	}
}

func (s *streamSource) Close() error {
	s.closeOnce.Do(func() {
		s.stop()
		<-s.done
	})
	return nil
}
