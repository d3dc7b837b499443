package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/pipeline"
	"github.com/your-org/attendance/internal/stream"
)

// Subscriber hands out viewer subscriptions to the annotated frame stream.
type Subscriber interface {
	Subscribe() (*stream.Subscription, error)
}

// StatusProvider reports the state of the capture loop.
type StatusProvider interface {
	Status() pipeline.Status
}

type LiveHandler struct {
	frames      Subscriber
	contentType string
	runner      StatusProvider
}

func NewLiveHandler(frames Subscriber, contentType string, runner StatusProvider) *LiveHandler {
	return &LiveHandler{frames: frames, contentType: contentType, runner: runner}
}

// VideoFeed serves the annotated frames as multipart/x-mixed-replace until the
// client disconnects or capture stops.
func (h *LiveHandler) VideoFeed(c *gin.Context) {
	sub, err := h.frames.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream unavailable"})
		return
	}

	c.Header("Content-Type", h.contentType)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "close")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for chunk := range sub.Chunks(c.Request.Context()) {
		if _, err := c.Writer.Write(chunk); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// Status handles GET /v1/status.
func (h *LiveHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Status())
}
