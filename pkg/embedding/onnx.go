//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// ONNXEmbedder runs a pooled sentence-embedding model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library. One inference runs at a
// time; the Gateway in front of it caches results.
type ONNXEmbedder struct {
	mu        sync.Mutex
	cfg       ONNXConfig
	tokenizer Tokenizer
	session   *ort.AdvancedSession
	io        *onnxBindings
}

// onnxBindings are the tensors bound to the session. Run reads the inputs
// and overwrites the output in place.
type onnxBindings struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXBindings(maxTokens, dimensions int) (*onnxBindings, error) {
	b := &onnxBindings{}
	in := ort.NewShape(1, int64(maxTokens))
	var err error
	if b.inputIDs, err = ort.NewEmptyTensor[int64](in); err != nil {
		return nil, err
	}
	if b.attentionMask, err = ort.NewEmptyTensor[int64](in); err != nil {
		b.destroy()
		return nil, err
	}
	if b.tokenTypeIDs, err = ort.NewEmptyTensor[int64](in); err != nil {
		b.destroy()
		return nil, err
	}
	if b.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		b.destroy()
		return nil, err
	}
	return b, nil
}

func (b *onnxBindings) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{b.inputIDs, b.attentionMask, b.tokenTypeIDs}
}

func (b *onnxBindings) load(ids, mask, types []int64) {
	copy(b.inputIDs.GetData(), ids)
	copy(b.attentionMask.GetData(), mask)
	copy(b.tokenTypeIDs.GetData(), types)
}

func (b *onnxBindings) destroy() {
	for _, t := range []*ort.Tensor[int64]{b.inputIDs, b.attentionMask, b.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if b.output != nil {
		_ = b.output.Destroy()
	}
}

// NewONNXEmbedder loads cfg.ModelPath. The ONNX environment is initialised on
// first use.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if cfg.Dimensions <= 0 {
		return nil, loreerr.Errorf(loreerr.CodeEmbeddingDimensionInvalid,
			"onnx embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeEmbeddingFailure, "initialize ONNX runtime")
		}
	}
	bindings, err := newONNXBindings(cfg.MaxTokens, cfg.Dimensions)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeEmbeddingFailure, "allocate ONNX tensors")
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		bindings.inputs(),
		[]ort.ArbitraryTensor{bindings.output},
		nil)
	if err != nil {
		bindings.destroy()
		return nil, loreerr.Wrap(err, loreerr.CodeEmbeddingFailure, "load ONNX model",
			loreerr.Field("model_path", cfg.ModelPath))
	}
	return &ONNXEmbedder{
		cfg:       cfg,
		tokenizer: &SimpleTokenizer{},
		session:   session,
		io:        bindings,
	}, nil
}

// Embed returns the L2-normalised model output for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, loreerr.New(loreerr.CodeEmbeddingFailure, "onnx embedder is closed")
	}

	e.io.load(e.tokenizer.Tokenize(text, e.cfg.MaxTokens))
	if err := e.session.Run(); err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeEmbeddingFailure, "ONNX inference")
	}
	vec := append([]float32(nil), e.io.output.GetData()[:e.cfg.Dimensions]...)
	NormalizeL2Slice(vec)
	return vec, nil
}

// Dimensions returns the output vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases the session and its tensors. Closing twice is a no-op.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.io.destroy()
	e.io = nil
	return err
}
