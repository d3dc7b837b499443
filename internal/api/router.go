package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/storage"
)

type RouterConfig struct {
	DB    *storage.PostgresStore
	MinIO *storage.MinIOStore
	// NATS is nil when notifications go straight to the hub.
	NATS handlers.NATSPinger

	Gallery     handlers.GallerySource
	Frames      handlers.Subscriber
	ContentType string
	Runner      handlers.StatusProvider
	Hub         *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.NATS)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	liveH := handlers.NewLiveHandler(cfg.Frames, cfg.ContentType, cfg.Runner)
	r.GET("/video_feed", liveH.VideoFeed)

	v1 := r.Group("/v1")

	v1.GET("/stream", liveH.VideoFeed)
	v1.GET("/status", liveH.Status)
	v1.GET("/ws", cfg.Hub.HandleWS)

	attH := handlers.NewAttendanceHandler(cfg.DB, cfg.MinIO)
	v1.GET("/attendance", attH.List)
	v1.GET("/attendance/export", attH.Export)
	v1.GET("/attendance/:id/snapshot", attH.Snapshot)

	idH := handlers.NewIdentityHandler(cfg.DB, cfg.Gallery)
	v1.GET("/identities", idH.List)
	v1.POST("/identities/:id/approve", idH.Approve)
	v1.GET("/gallery", idH.Gallery)

	return r
}
