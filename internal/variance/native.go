package variance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/safetensors"
)

// Config describes the predictor architecture.
type Config struct {
	InputDim   int
	Layers     int
	Channels   int
	KernelSize int
	// Dropout is recorded for trainers; inference never drops.
	Dropout float64
}

func DefaultConfig(inputDim int) Config {
	return Config{InputDim: inputDim, Layers: 2, Channels: 384, KernelSize: 3, Dropout: 0.1}
}

func (c Config) Validate() error {
	if c.InputDim < 1 || c.Layers < 1 || c.Channels < 1 {
		return fmt.Errorf("variance: idim, n_layers and n_chans must be >= 1, got %d, %d, %d", c.InputDim, c.Layers, c.Channels)
	}

	if c.KernelSize < 1 || c.KernelSize%2 == 0 {
		return fmt.Errorf("variance: kernel size must be odd and >= 1, got %d", c.KernelSize)
	}

	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("variance: dropout must be in [0, 1), got %v", c.Dropout)
	}

	return nil
}

// Native is a CPU variance predictor: a stack of conv blocks followed by a
// projection to one scalar per frame.
type Native struct {
	cfg    Config
	blocks []*convBlock
	proj   *linear
}

// LoadNative reads weights from a safetensors checkpoint and returns the
// predictor together with the file's string metadata.
func LoadNative(path string) (*Native, map[string]string, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	n, err := NewNative(NewVarBuilder(store))
	if err != nil {
		return nil, nil, fmt.Errorf("%w (file %s)", err, path)
	}

	return n, store.Metadata(), nil
}

// NewNative builds a predictor from conv.{i}.0, conv.{i}.2 and linear
// weights. The architecture is inferred from the tensor shapes.
func NewNative(vb *VarBuilder) (*Native, error) {
	convs := vb.Path("conv")

	var blocks []*convBlock

	in := int64(-1)
	for i := 0; convs.Index(i).Has("0.weight"); i++ {
		if in < 0 {
			w, err := convs.Index(i).Tensor("0.weight")
			if err != nil {
				return nil, err
			}

			in = w.Shape()[1]
		}

		b, err := loadConvBlock(convs.Index(i), in)
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, b)
		in = b.outChannels()
	}

	if len(blocks) == 0 {
		return nil, errors.New("variance: checkpoint has no conv.0.0.weight")
	}

	proj, err := loadLinear(vb.Path("linear"), in)
	if err != nil {
		return nil, err
	}

	if proj.weight.Shape()[0] != 1 {
		return nil, fmt.Errorf("variance: projection must have one output, got %v", proj.weight.Shape())
	}

	cfg := Config{
		InputDim:   int(blocks[0].weight.Shape()[1]),
		Layers:     len(blocks),
		Channels:   int(blocks[0].outChannels()),
		KernelSize: int(blocks[0].kernelSize()),
	}

	return &Native{cfg: cfg, blocks: blocks, proj: proj}, nil
}

// Init creates a predictor with deterministic random weights:
// uniform(-1/sqrt(fan_in), 1/sqrt(fan_in)) for conv and linear layers,
// identity LayerNorm.
func Init(cfg Config, seed int64) (*Native, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0))

	uniform := func(shape []int64, fanIn int) *tensor.Tensor {
		bound := 1 / math.Sqrt(float64(fanIn))

		t, _ := tensor.Zeros(shape)
		data := t.RawData()

		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * bound)
		}

		return t
	}

	n := &Native{cfg: cfg}
	in := cfg.InputDim
	chans := int64(cfg.Channels)
	k := int64(cfg.KernelSize)

	for range cfg.Layers {
		fanIn := in * cfg.KernelSize

		w := uniform([]int64{chans, int64(in), k}, fanIn)
		b := uniform([]int64{chans}, fanIn)
		gamma, _ := tensor.Full([]int64{chans}, 1)
		beta, _ := tensor.Zeros([]int64{chans})

		n.blocks = append(n.blocks, &convBlock{weight: w, bias: b, norm: &layerNorm{weight: gamma, bias: beta}})
		in = cfg.Channels
	}

	n.proj = &linear{
		weight: uniform([]int64{1, chans}, cfg.Channels),
		bias:   uniform([]int64{1}, cfg.Channels),
	}

	slog.Debug("initialized variance predictor", "idim", cfg.InputDim, "layers", cfg.Layers, "chans", cfg.Channels, "seed", seed)

	return n, nil
}

func (n *Native) Config() Config { return n.cfg }

// Forward maps xs [B, T, idim] to [B, T]. Frames the mask marks as padding
// are set to zero; a nil mask treats every frame as valid.
func (n *Native) Forward(ctx context.Context, xs *tensor.Tensor, mask *tensor.Mask) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if xs == nil || xs.Rank() != 3 {
		return nil, fmt.Errorf("%w: xs must be [B T D], got %v", ErrShapeMismatch, xs.Shape())
	}

	shape := xs.Shape()
	if shape[2] != int64(n.cfg.InputDim) {
		return nil, fmt.Errorf("%w: xs feature dim %d, want %d", ErrShapeMismatch, shape[2], n.cfg.InputDim)
	}

	if err := mask.CheckShape(xs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}

	if shape[1] == 0 {
		return tensor.Zeros([]int64{shape[0], 0})
	}

	h := xs
	for i, b := range n.blocks {
		var err error

		h, err = b.forward(h)
		if err != nil {
			return nil, fmt.Errorf("variance: conv block %d: %w", i, err)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	out, err := n.proj.forward(h)
	if err != nil {
		return nil, fmt.Errorf("variance: projection: %w", err)
	}

	out, err = out.Squeeze(-1)
	if err != nil {
		return nil, err
	}

	return tensor.MaskedFill(out, mask, 0)
}

// Inference runs Forward without a mask and rescales each utterance about
// its mean by alpha, so alpha < 1 flattens the contour and alpha > 1
// exaggerates it.
func (n *Native) Inference(ctx context.Context, xs *tensor.Tensor, alpha float32) (*tensor.Tensor, error) {
	out, err := n.Forward(ctx, xs, nil)
	if err != nil {
		return nil, err
	}

	return tensor.ScaleAroundMean(out, alpha)
}

// Params returns every weight under its checkpoint name.
func (n *Native) Params() []safetensors.Tensor {
	out := make([]safetensors.Tensor, 0, 4*len(n.blocks)+2)

	add := func(name string, t *tensor.Tensor) {
		out = append(out, safetensors.Tensor{Name: name, Shape: t.Shape(), Data: t.Data()})
	}

	for i, b := range n.blocks {
		prefix := "conv." + strconv.Itoa(i)
		add(prefix+".0.weight", b.weight)
		add(prefix+".0.bias", b.bias)
		add(prefix+".2.weight", b.norm.weight)
		add(prefix+".2.bias", b.norm.bias)
	}

	add("linear.weight", n.proj.weight)
	add("linear.bias", n.proj.bias)

	return out
}

// Metadata describes the architecture for checkpoint headers.
func (n *Native) Metadata() map[string]string {
	return map[string]string{
		"idim":        strconv.Itoa(n.cfg.InputDim),
		"n_layers":    strconv.Itoa(n.cfg.Layers),
		"n_chans":     strconv.Itoa(n.cfg.Channels),
		"kernel_size": strconv.Itoa(n.cfg.KernelSize),
	}
}
