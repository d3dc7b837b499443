package capture

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// StartFFmpeg runs ffmpeg with args and reads MJPEG frames from its stdout.
// The process is killed when the source is closed or ctx is cancelled.
func StartFFmpeg(ctx context.Context, args []string) (Source, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	slog.Info("ffmpeg started", "pid", cmd.Process.Pid)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	return newStreamSource(ctx, stdout, cmd.Wait, cancel), nil
}

// ffmpegArgs builds the ffmpeg command line for a camera type. Output is
// MJPEG on stdout at the requested rate, scaled to width.
func ffmpegArgs(sourceType, input string, fps, width int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch sourceType {
	case "device":
		args = append(args, "-f", "v4l2", "-framerate", strconv.Itoa(fps))
	case "rtsp":
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000", // microseconds
		)
	case "http", "youtube":
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	return append(args,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-2", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}
