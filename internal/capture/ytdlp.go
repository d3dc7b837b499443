package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ResolveYouTubeURL returns the direct stream URL of a YouTube page, limited
// to renditions no wider than the camera width.
func ResolveYouTubeURL(ctx context.Context, pageURL string, width int) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--get-url",
		"--format", formatSelector(width),
		"--no-playlist",
		"--no-warnings",
		pageURL,
	)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp %s: %w", pageURL, err)
	}
	return firstURL(string(output))
}

// formatSelector prefers a video-only rendition within width and falls back
// to the best muxed one.
func formatSelector(width int) string {
	if width <= 0 {
		return "bestvideo/best"
	}
	return fmt.Sprintf("bestvideo[width<=%d]/best[width<=%d]/best", width, width)
}

// firstURL keeps the first line; muxed formats print video and audio URLs.
func firstURL(output string) (string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	url := strings.TrimSpace(line)
	if url == "" {
		return "", fmt.Errorf("yt-dlp printed no stream url")
	}
	return url, nil
}
