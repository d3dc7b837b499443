package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/stream"
	"github.com/your-org/attendance/internal/vision"
)

// Vision is the face capability the pipeline consumes.
type Vision interface {
	DetectFaces(img image.Image) ([]vision.BoundingBox, error)
	EncodeFace(crop image.Image) (vision.Embedding, error)
	Compare(gallery []vision.Embedding, probe vision.Embedding) []vision.Comparison
}

type Gallery interface {
	Current() *gallery.Snapshot
}

type AttendanceWriter interface {
	RecordAttendance(ctx context.Context, ev models.AttendanceEvent) error
}

// SnapshotStore keeps the face crop of each recorded event.
type SnapshotStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Notifier announces recorded attendance to live subscribers.
type Notifier interface {
	NotifyAttendance(ctx context.Context, rec models.AttendanceRecord) error
}

// Publisher receives encoded stream chunks.
type Publisher interface {
	Publish(chunk []byte)
}

// Deps are the collaborators of a Pipeline. Snapshots and Notifier are optional.
type Deps struct {
	Vision    Vision
	Gallery   Gallery
	Writer    AttendanceWriter
	Snapshots SnapshotStore
	Notifier  Notifier
	Encoder   *stream.Encoder
	Output    Publisher
}

// Pipeline runs the per-frame loop: detect, encode, match, gate, record,
// annotate and publish. A Pipeline owns its cooldown state; run at most one
// source through it at a time.
type Pipeline struct {
	deps            Deps
	cooldown        *Cooldown
	writeTimeout    time.Duration
	labelAlways     bool
	snapshotQuality int
	now             func() time.Time
}

func New(cfg config.AttendanceConfig, snapshotQuality int, deps Deps) *Pipeline {
	return &Pipeline{
		deps:            deps,
		cooldown:        NewCooldown(cfg.Cooldown),
		writeTimeout:    cfg.WriteTimeout,
		labelAlways:     cfg.LabelMode == config.LabelAlways,
		snapshotQuality: snapshotQuality,
		now:             time.Now,
	}
}

// Run processes frames from src until it is exhausted, fails or ctx is done.
// src is closed on every return path. Exhaustion returns nil.
func (p *Pipeline) Run(ctx context.Context, src capture.Source) error {
	defer src.Close()

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				slog.Info("capture source exhausted")
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("capture: %w", err)
			}
		}
		p.ProcessFrame(ctx, frame)
	}
}

// FrameResult summarises what happened to one frame.
type FrameResult struct {
	Faces    int
	Matched  int
	Recorded []models.AttendanceEvent
	Labels   []string // names drawn on the published frame
}

type faceAnnotation struct {
	box   vision.BoundingBox
	label string
}

// ProcessFrame handles a single frame. Frames that cannot be decoded are
// skipped; every decoded frame is published, with or without faces.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame capture.Frame) FrameResult {
	var res FrameResult

	decoded, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		slog.Warn("decode frame", "seq", frame.Seq, "error", err)
		return res
	}
	img := vision.ToRGBA(decoded)
	observability.FramesProcessed.Inc()

	// one snapshot per frame, never re-read mid-frame
	snap := p.deps.Gallery.Current()
	now := p.now()

	start := time.Now()
	boxes, err := p.deps.Vision.DetectFaces(img)
	if err != nil {
		slog.Warn("detect faces", "seq", frame.Seq, "error", err)
		boxes = nil
	}
	res.Faces = len(boxes)
	observability.FacesDetected.Add(float64(len(boxes)))

	annotations := make([]faceAnnotation, 0, len(boxes))
	for _, box := range boxes {
		ann := faceAnnotation{box: box}
		crop := vision.CropFace(img, box)
		if crop == nil {
			annotations = append(annotations, ann)
			continue
		}

		m, ok := p.identify(crop, snap)
		if ok {
			res.Matched++
			observability.FacesMatched.Inc()
			if p.labelAlways {
				ann.label = m.Identity.Name
			}
			if ev, recorded := p.gate(ctx, m, now, crop); recorded {
				res.Recorded = append(res.Recorded, ev)
				ann.label = m.Identity.Name
			}
		}
		annotations = append(annotations, ann)
	}
	observability.InferenceDuration.WithLabelValues("frame").Observe(time.Since(start).Seconds())

	for _, ann := range annotations {
		r := ann.box.Rect()
		drawFace(img, r)
		if ann.label != "" {
			drawLabel(img, r.Min.X, r.Min.Y, ann.label)
			res.Labels = append(res.Labels, ann.label)
		}
	}

	chunk, err := p.deps.Encoder.Encode(img)
	if err != nil {
		slog.Error("encode frame", "seq", frame.Seq, "error", err)
		return res
	}
	p.deps.Output.Publish(chunk)
	return res
}

// identify encodes a face crop and resolves it against the snapshot.
func (p *Pipeline) identify(crop image.Image, snap *gallery.Snapshot) (Match, bool) {
	probe, err := p.deps.Vision.EncodeFace(crop)
	if err != nil {
		if !errors.Is(err, vision.ErrNoEmbedding) {
			slog.Warn("encode face", "error", err)
		}
		return Match{}, false
	}
	if snap.Empty() {
		return Match{}, false
	}
	return bestMatch(snap, p.deps.Vision.Compare(snap.Embeddings, probe))
}

// gate applies the cooldown and, when eligible, persists an attendance event.
// The cooldown only advances after a successful write.
func (p *Pipeline) gate(ctx context.Context, m Match, now time.Time, crop image.Image) (models.AttendanceEvent, bool) {
	id := m.Identity.ID
	if !p.cooldown.Eligible(id, now) {
		observability.AttendanceOutcomes.WithLabelValues(observability.OutcomeSuppressed).Inc()
		return models.AttendanceEvent{}, false
	}

	ev := models.AttendanceEvent{
		ID:         uuid.New(),
		IdentityID: id,
		Timestamp:  now,
		Status:     models.AttendanceStatusPresent,
	}

	wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	err := p.deps.Writer.RecordAttendance(wctx, ev)
	cancel()
	if err != nil {
		observability.AttendanceOutcomes.WithLabelValues(observability.OutcomeFailed).Inc()
		slog.Error("record attendance", "identity", id, "error", err)
		return models.AttendanceEvent{}, false
	}

	p.cooldown.Mark(id, now)
	observability.AttendanceOutcomes.WithLabelValues(observability.OutcomeRecorded).Inc()
	slog.Info("attendance recorded",
		"event", ev.ID,
		"identity", id,
		"name", m.Identity.Name,
		"distance", m.Distance,
	)

	p.afterRecord(ctx, ev, m.Identity, crop)
	return ev, true
}

// afterRecord runs best-effort side effects of a recorded event. Failures are
// logged and never undo the event.
func (p *Pipeline) afterRecord(ctx context.Context, ev models.AttendanceEvent, ident models.Identity, crop image.Image) {
	if p.deps.Snapshots != nil {
		data, err := stream.EncodeJPEG(crop, p.snapshotQuality)
		if err == nil {
			sctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
			err = p.deps.Snapshots.PutObject(sctx, ev.SnapshotKey(), data, "image/jpeg")
			cancel()
		}
		if err != nil {
			slog.Warn("save attendance snapshot", "event", ev.ID, "error", err)
		}
	}

	if p.deps.Notifier != nil {
		rec := models.AttendanceRecord{
			AttendanceEvent: ev,
			IdentityName:    ident.Name,
			CreatedAt:       ev.Timestamp,
		}
		if err := p.deps.Notifier.NotifyAttendance(ctx, rec); err != nil {
			slog.Warn("notify attendance", "event", ev.ID, "error", err)
		}
	}
}
