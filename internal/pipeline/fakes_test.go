package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/stream"
	"github.com/your-org/attendance/internal/vision"
)

// face is one scripted detection: where it is and what it encodes to.
type face struct {
	box       vision.BoundingBox
	embedding vision.Embedding
	encodeErr error
}

// scriptedVision replays one []face per DetectFaces call.
type scriptedVision struct {
	frames    [][]face
	detectErr error
	call      int
	pending   []face
}

func (v *scriptedVision) DetectFaces(img image.Image) ([]vision.BoundingBox, error) {
	if v.detectErr != nil {
		return nil, v.detectErr
	}
	var faces []face
	if v.call < len(v.frames) {
		faces = v.frames[v.call]
	}
	v.call++
	v.pending = faces
	boxes := make([]vision.BoundingBox, len(faces))
	for i, f := range faces {
		boxes[i] = f.box
	}
	return boxes, nil
}

func (v *scriptedVision) EncodeFace(crop image.Image) (vision.Embedding, error) {
	f := v.pending[0]
	v.pending = v.pending[1:]
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.embedding, nil
}

func (v *scriptedVision) Compare(g []vision.Embedding, probe vision.Embedding) []vision.Comparison {
	return vision.Compare(g, probe, 0.3)
}

type staticGallery struct{ snap *gallery.Snapshot }

func (g *staticGallery) Current() *gallery.Snapshot { return g.snap }

// recordingWriter fails the calls listed in failOn (0-based).
type recordingWriter struct {
	mu     sync.Mutex
	events []models.AttendanceEvent
	calls  int
	failOn map[int]error
}

func (w *recordingWriter) RecordAttendance(ctx context.Context, ev models.AttendanceEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	call := w.calls
	w.calls++
	if err, ok := w.failOn[call]; ok {
		return err
	}
	w.events = append(w.events, ev)
	return nil
}

type chunkSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *chunkSink) Publish(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *chunkSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

type memObjects struct {
	objects map[string][]byte
	err     error
}

func (m *memObjects) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	return nil
}

type notifications struct {
	records []models.AttendanceRecord
}

func (n *notifications) NotifyAttendance(ctx context.Context, rec models.AttendanceRecord) error {
	n.records = append(n.records, rec)
	return nil
}

// sliceSource yields the given frames, then finalErr (io.EOF if nil).
type sliceSource struct {
	frames   []capture.Frame
	finalErr error
	closed   int
}

func (s *sliceSource) Next(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}
	if len(s.frames) == 0 {
		if s.finalErr != nil {
			return capture.Frame{}, s.finalErr
		}
		return capture.Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed++
	return nil
}

var errDeviceGone = errors.New("device gone")

func testFrameJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 96, 96))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func frames(t *testing.T, n int) []capture.Frame {
	t.Helper()
	data := testFrameJPEG(t)
	out := make([]capture.Frame, n)
	for i := range out {
		out[i] = capture.Frame{Seq: uint64(i + 1), Data: data}
	}
	return out
}

func snapshotOf(identities ...models.Identity) *gallery.Snapshot {
	snap := &gallery.Snapshot{RefreshedAt: time.Now()}
	for _, ident := range identities {
		snap.Identities = append(snap.Identities, ident)
		snap.Embeddings = append(snap.Embeddings, vision.Embedding(ident.Embedding))
	}
	return snap
}

func approved(name string, emb ...float32) models.Identity {
	return models.Identity{ID: uuid.New(), Name: name, Approved: true, Embedding: emb}
}

var (
	boxA = vision.BoundingBox{X: 8, Y: 30, W: 30, H: 30}
	boxB = vision.BoundingBox{X: 56, Y: 30, W: 30, H: 30}
)

// harness wires a pipeline to fakes with a controllable clock.
type harness struct {
	p       *Pipeline
	vision  *scriptedVision
	gallery *staticGallery
	writer  *recordingWriter
	sink    *chunkSink
	clock   time.Time
}

func newHarness(snap *gallery.Snapshot, labelMode string) *harness {
	h := &harness{
		vision:  &scriptedVision{},
		gallery: &staticGallery{snap: snap},
		writer:  &recordingWriter{failOn: map[int]error{}},
		sink:    &chunkSink{},
		clock:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	cfg := config.AttendanceConfig{
		Cooldown:     10 * time.Second,
		WriteTimeout: time.Second,
		LabelMode:    labelMode,
	}
	h.p = New(cfg, 80, Deps{
		Vision:  h.vision,
		Gallery: h.gallery,
		Writer:  h.writer,
		Encoder: stream.NewEncoder("frame", 80),
		Output:  h.sink,
	})
	h.p.now = func() time.Time { return h.clock }
	return h
}

// at processes one frame containing faces at offset seconds from the start.
func (h *harness) at(t *testing.T, offset time.Duration, faces ...face) FrameResult {
	t.Helper()
	h.clock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(offset)
	h.vision.frames = append(h.vision.frames, faces)
	return h.p.ProcessFrame(context.Background(), capture.Frame{Data: testFrameJPEG(t)})
}
