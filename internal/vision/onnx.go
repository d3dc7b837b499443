package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// ONNX is the default face capability backed by ONNX Runtime. The ORT
// environment must be initialised before NewONNX is called. Not safe for
// concurrent use; the frame loop owns it.
type ONNX struct {
	detector    *Detector
	embedder    *Embedder
	threshold   float32
	minFaceSize int
}

func NewONNX(cfg config.VisionConfig) (*ONNX, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision models ready")
	return &ONNX{
		detector:    det,
		embedder:    emb,
		threshold:   float32(cfg.MatchThreshold),
		minFaceSize: cfg.MinFaceSize,
	}, nil
}

func (o *ONNX) DetectFaces(img image.Image) ([]BoundingBox, error) {
	start := time.Now()
	defer func() {
		observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}()
	return o.detector.Detect(img)
}

// EncodeFace returns ErrNoEmbedding for crops smaller than the configured
// minimum face size.
func (o *ONNX) EncodeFace(crop image.Image) (Embedding, error) {
	b := crop.Bounds()
	if b.Dx() < o.minFaceSize || b.Dy() < o.minFaceSize {
		return nil, ErrNoEmbedding
	}

	start := time.Now()
	defer func() {
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	}()
	return o.embedder.Extract(crop)
}

func (o *ONNX) Compare(gallery []Embedding, probe Embedding) []Comparison {
	return Compare(gallery, probe, o.threshold)
}

// Close releases all ONNX sessions.
func (o *ONNX) Close() {
	o.detector.Close()
	o.embedder.Close()
}
