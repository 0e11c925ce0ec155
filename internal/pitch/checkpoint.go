package pitch

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/example/go-pitchpred/internal/safetensors"
	"github.com/example/go-pitchpred/internal/variance"
)

// Checkpoint metadata keys.
const (
	MetaPMin   = "pitch.p_min"
	MetaPMax   = "pitch.p_max"
	MetaNBins  = "pitch.n_bins"
	MetaDomain = "pitch.domain"
)

// ParamSource is implemented by sequence predictors that can be saved.
type ParamSource interface {
	Params() []safetensors.Tensor
	Metadata() map[string]string
}

// Metadata returns the bin-table description stored with checkpoints.
func (p *Predictor) Metadata() map[string]string {
	cfg := p.table.Config()

	return map[string]string{
		MetaPMin:   strconv.FormatFloat(cfg.PMin, 'g', -1, 64),
		MetaPMax:   strconv.FormatFloat(cfg.PMax, 'g', -1, 64),
		MetaNBins:  strconv.Itoa(cfg.NBins),
		MetaDomain: string(p.domain),
	}
}

// Save writes the sequence predictor weights plus bin-table metadata.
func (p *Predictor) Save(path string) error {
	src, ok := p.seq.(ParamSource)
	if !ok {
		return fmt.Errorf("pitch: %T cannot be saved as a checkpoint", p.seq)
	}

	meta := src.Metadata()
	if meta == nil {
		meta = map[string]string{}
	}

	maps.Copy(meta, p.Metadata())

	if err := safetensors.Write(path, safetensors.File{Tensors: src.Params(), Metadata: meta}); err != nil {
		return fmt.Errorf("pitch: save %s: %w", path, err)
	}

	slog.Info("saved pitch predictor checkpoint", "path", path, "n_bins", p.table.NBins(), "domain", p.domain)

	return nil
}

// VerifyMetadata checks checkpoint metadata against the configured table
// and domain. A checkpoint that carries no pitch metadata at all is
// accepted with a warning. Once any pitch key is present all four are
// required, and each must match.
func VerifyMetadata(meta map[string]string, table *BinTable, domain Domain) error {
	_, hasMin := meta[MetaPMin]
	_, hasMax := meta[MetaPMax]
	_, hasBins := meta[MetaNBins]
	_, hasDomain := meta[MetaDomain]

	if !hasMin && !hasMax && !hasBins && !hasDomain {
		slog.Warn("checkpoint has no pitch bin metadata; trusting configuration",
			"p_min", table.Config().PMin, "p_max", table.Config().PMax, "n_bins", table.NBins())

		return nil
	}

	cfg := table.Config()

	var errs []error

	checkFloat := func(key string, want float64) {
		raw, ok := meta[key]
		if !ok {
			errs = append(errs, fmt.Errorf("%s missing", key))
			return
		}

		got, err := strconv.ParseFloat(raw, 64)
		if err != nil || got != want {
			errs = append(errs, fmt.Errorf("%s = %q, configured %v", key, raw, want))
		}
	}

	checkFloat(MetaPMin, cfg.PMin)
	checkFloat(MetaPMax, cfg.PMax)

	if raw := meta[MetaNBins]; raw != strconv.Itoa(cfg.NBins) {
		errs = append(errs, fmt.Errorf("%s = %q, configured %d", MetaNBins, raw, cfg.NBins))
	}

	switch raw, ok := meta[MetaDomain]; {
	case !ok:
		errs = append(errs, fmt.Errorf("%s missing", MetaDomain))
	case Domain(raw) != domain:
		errs = append(errs, fmt.Errorf("%s = %q, configured %q", MetaDomain, raw, domain))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrBinTableMismatch, errors.Join(errs...))
	}

	return nil
}

// LoadCheckpoint loads a native predictor checkpoint and verifies that it
// was trained against the same bin table.
func LoadCheckpoint(path string, table *BinTable, domain Domain) (*Predictor, error) {
	seq, meta, err := variance.LoadNative(path)
	if err != nil {
		return nil, err
	}

	if err := VerifyMetadata(meta, table, domain); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return NewPredictor(seq, table, domain)
}
