package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NATSPinger matches the queue producer, whose health check needs no context.
type NATSPinger interface {
	Ping() error
}

type SystemHandler struct {
	db    Pinger
	minio Pinger
	nats  NATSPinger
}

// NewSystemHandler builds the health handler. nats may be nil when
// notifications bypass the broker.
func NewSystemHandler(db, minio Pinger, nats NATSPinger) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, nats: nats}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	record("postgres", h.db.Ping(ctx))
	record("minio", h.minio.Ping(ctx))
	if h.nats != nil {
		record("nats", h.nats.Ping())
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
