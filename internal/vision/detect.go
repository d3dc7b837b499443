package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
type Detector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	scoreTensors []*ort.Tensor[float32]
	boxTensors   []*ort.Tensor[float32]
	threshold    float32
	inputW       int
	inputH       int
}

// det_10g feature map strides; each cell carries two anchors.
var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsIoU           = 0.4
)

// Output tensor names per stride. Landmark outputs are not bound.
var (
	scoreOutputs = []string{"448", "471", "494"}
	boxOutputs   = []string{"451", "474", "497"}
)

type detection struct {
	box   [4]float32 // x1, y1, x2, y2
	score float32
}

// NewDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{threshold: threshold, inputW: 640, inputH: 640}

	var err error
	d.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(d.inputH), int64(d.inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	names := make([]string, 0, 2*len(strides))
	values := make([]ort.Value, 0, 2*len(strides))
	for i, stride := range strides {
		n := int64((d.inputW / stride) * (d.inputH / stride) * anchorsPerStride)

		scores, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor (stride %d): %w", stride, err)
		}
		d.scoreTensors = append(d.scoreTensors, scores)

		boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create bbox tensor (stride %d): %w", stride, err)
		}
		d.boxTensors = append(d.boxTensors, boxes)

		names = append(names, scoreOutputs[i], boxOutputs[i])
		values = append(values, scores, boxes)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		names,
		[]ort.Value{d.inputTensor},
		values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect finds faces in img and returns their boxes in img's pixel space,
// highest confidence first.
func (d *Detector) Detect(img image.Image) ([]BoundingBox, error) {
	bounds := img.Bounds()
	copy(d.inputTensor.GetData(), preprocessForDetection(img, d.inputW, d.inputH))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scores := make([][]float32, len(strides))
	boxes := make([][]float32, len(strides))
	for i := range strides {
		scores[i] = d.scoreTensors[i].GetData()
		boxes[i] = d.boxTensors[i].GetData()
	}

	dets := decodeDetections(scores, boxes, d.threshold, d.inputW, d.inputH, bounds.Dx(), bounds.Dy())
	dets = nms(dets, nmsIoU)

	out := make([]BoundingBox, 0, len(dets))
	for _, det := range dets {
		box := det.toBox()
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		box.X += bounds.Min.X
		box.Y += bounds.Min.Y
		out = append(out, box)
	}
	return out, nil
}

// decodeDetections turns anchor-relative RetinaFace outputs into boxes scaled
// to an origW x origH frame. Distances are in stride units.
func decodeDetections(scores, boxes [][]float32, threshold float32, inputW, inputH, origW, origH int) []detection {
	var dets []detection

	scaleW := float32(origW) / float32(inputW)
	scaleH := float32(origH) / float32(inputH)

	for si, stride := range strides {
		fmW, fmH := inputW/stride, inputH/stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if idx >= len(scores[si]) {
						break
					}
					if score := scores[si][idx]; score >= threshold {
						ax, ay := float32(cx)*st, float32(cy)*st
						b := boxes[si][idx*4 : idx*4+4]
						dets = append(dets, detection{
							box: [4]float32{
								clampF((ax-b[0]*st)*scaleW, 0, float32(origW)),
								clampF((ay-b[1]*st)*scaleH, 0, float32(origH)),
								clampF((ax+b[2]*st)*scaleW, 0, float32(origW)),
								clampF((ay+b[3]*st)*scaleH, 0, float32(origH)),
							},
							score: score,
						})
					}
					idx++
				}
			}
		}
	}
	return dets
}

func (d detection) toBox() BoundingBox {
	x1, y1 := int(d.box[0]), int(d.box[1])
	return BoundingBox{
		X:          x1,
		Y:          y1,
		W:          int(d.box[2]) - x1,
		H:          int(d.box[3]) - y1,
		Confidence: d.score,
	}
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.scoreTensors {
		t.Destroy()
	}
	for _, t := range d.boxTensors {
		t.Destroy()
	}
}

// nms performs greedy Non-Maximum Suppression, keeping the highest scores.
func nms(dets []detection, iouThreshold float32) []detection {
	if len(dets) == 0 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].score > dets[j].score
	})

	keep := make([]detection, 0, len(dets))
	for _, cand := range dets {
		suppressed := false
		for _, k := range keep {
			if iou(k.box, cand.box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, cand)
		}
	}
	return keep
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
