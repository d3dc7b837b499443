package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeJPEG(body ...byte) []byte {
	out := []byte{0xFF, 0xD8}
	out = append(out, body...)
	return append(out, 0xFF, 0xD9)
}

func TestJPEGScanner(t *testing.T) {
	a := fakeJPEG(1, 2, 3)
	b := fakeJPEG(0xFF, 0x00, 4) // stuffed FF inside the entropy data
	stream := append([]byte{0x00, 0x42}, a...)
	stream = append(stream, 0x0A)
	stream = append(stream, b...)

	sc := newJPEGScanner(bytes.NewReader(stream))

	got, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestJPEGScanner_TruncatedFrame(t *testing.T) {
	stream := append(fakeJPEG(7), 0xFF, 0xD8, 1, 2)
	sc := newJPEGScanner(bytes.NewReader(stream))

	_, err := sc.Next()
	require.NoError(t, err)

	_, err = sc.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSource_Order(t *testing.T) {
	var stream []byte
	for i := byte(0); i < 5; i++ {
		stream = append(stream, fakeJPEG(i)...)
	}
	src := NewReaderSource(io.NopCloser(bytes.NewReader(stream)))
	defer src.Close()

	ctx := context.Background()
	for i := byte(0); i < 5; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Equal(t, fakeJPEG(i), f.Data)
	}

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "exhausted source stays exhausted")
}

type failingReader struct{ data *bytes.Reader }

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, errors.New("device unplugged")
	}
	return n, err
}

func (r *failingReader) Close() error { return nil }

func TestReaderSource_ReadFailure(t *testing.T) {
	src := NewReaderSource(&failingReader{data: bytes.NewReader(fakeJPEG(1))})
	defer src.Close()

	_, err := src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestReaderSource_CloseUnblocksAndIsIdempotent(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewReaderSource(pr)

	go func() { _, _ = pw.Write(fakeJPEG(9)) }()
	_, err := src.Next(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, src.Close())
		assert.NoError(t, src.Close())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an idle reader")
	}

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSource_NextHonoursContext(t *testing.T) {
	pr, _ := io.Pipe()
	src := NewReaderSource(pr)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("device", "/dev/video0", 10, 640)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "v4l2", "-framerate", "10",
		"-i", "/dev/video0",
		"-vf", "fps=10,scale=640:-2",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5",
		"pipe:1",
	}, args)

	rtsp := ffmpegArgs("rtsp", "rtsp://cam/1", 5, 320)
	assert.Contains(t, rtsp, "-rtsp_transport")
	assert.NotContains(t, rtsp, "v4l2")

	http := ffmpegArgs("http", "http://cam/mjpeg", 5, 320)
	assert.Contains(t, http, "-reconnect")
}

func TestFirstURL(t *testing.T) {
	got, err := firstURL("https://video.example/v\nhttps://audio.example/a\n")
	require.NoError(t, err)
	assert.Equal(t, "https://video.example/v", got)

	_, err = firstURL("  \n")
	assert.Error(t, err)
}

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "bestvideo[width<=640]/best[width<=640]/best", formatSelector(640))
	assert.Equal(t, "bestvideo/best", formatSelector(0))
}
