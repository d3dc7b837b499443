package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// Embedder extracts 512-d face embeddings with the ArcFace w600k_r50 model.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	e := &Embedder{inputW: 112, inputH: 112, embDim: 512}

	var err error
	e.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(e.inputH), int64(e.inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	e.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.embDim)))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{e.inputTensor},
		[]ort.Value{e.outputTensor},
		opts,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return e, nil
}

// Extract returns the L2-normalised embedding of a face crop.
func (e *Embedder) Extract(face image.Image) (Embedding, error) {
	copy(e.inputTensor.GetData(), preprocessForEmbedding(face, e.inputW, e.inputH))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	emb := make(Embedding, e.embDim)
	copy(emb, e.outputTensor.GetData())
	if !normalize(emb) {
		return nil, ErrNoEmbedding
	}
	return emb, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in-place. It reports false for a zero
// or non-finite vector.
func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return true
}
