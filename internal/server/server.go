// Package server exposes the pitch quantizer and predictor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/example/go-pitchpred/internal/config"
	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/variance"
)

// Quantizer maps f0 contours or predictor outputs to bin indices.
type Quantizer interface {
	Table() *pitch.BinTable
	BinsForTraining(contour []float64) ([]int, error)
	BinsForInference(values []float64) ([]int, error)
}

// Predictor runs the pitch predictor and returns [B][T] bin indices.
type Predictor interface {
	InferenceBins(ctx context.Context, xs *tensor.Tensor, alpha float32) ([][]int, error)
}

type options struct {
	maxFrames      int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxFrames:      20000,
		workers:        2,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxFrames caps the number of frames (B*T for /predict) per request.
func WithMaxFrames(n int) Option {
	return func(o *options) { o.maxFrames = n }
}

// WithWorkers sets the maximum number of concurrent predictions. Zero
// disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request prediction deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type handler struct {
	quant Quantizer
	pred  Predictor
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /bins, POST /quantize
// and POST /predict. pred may be nil, in which case /predict answers 503.
func NewHandler(quant Quantizer, pred Predictor, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{quant: quant, pred: pred, opts: opts, log: opts.logger}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /bins", h.handleBins)
	mux.HandleFunc("POST /quantize", h.handleQuantize)
	mux.HandleFunc("POST /predict", h.handlePredict)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   buildVersion(),
		"predictor": h.pred != nil,
	})
}

type binsResponse struct {
	PMin    float64   `json:"p_min"`
	PMax    float64   `json:"p_max"`
	NBins   int       `json:"n_bins"`
	Policy  string    `json:"range_policy"`
	EdgesHz []float64 `json:"edges_hz"`
}

func (h *handler) handleBins(w http.ResponseWriter, _ *http.Request) {
	table := h.quant.Table()
	cfg := table.Config()

	writeJSON(w, http.StatusOK, binsResponse{
		PMin:    cfg.PMin,
		PMax:    cfg.PMax,
		NBins:   cfg.NBins,
		Policy:  cfg.Policy.String(),
		EdgesHz: table.EdgesHz(),
	})
}

type quantizeRequest struct {
	F0 []float64 `json:"f0"`
	// Inference treats F0 as log-domain predictor outputs.
	Inference bool `json:"inference"`
}

type quantizeResponse struct {
	Bins   []int `json:"bins"`
	Frames int   `json:"frames"`
}

func (h *handler) handleQuantize(w http.ResponseWriter, r *http.Request) {
	var req quantizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.F0) == 0 {
		writeError(w, http.StatusBadRequest, "f0 field is required")
		return
	}

	if len(req.F0) > h.opts.maxFrames {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("f0 exceeds maximum of %d frames", h.opts.maxFrames))
		return
	}

	quantize := h.quant.BinsForTraining
	if req.Inference {
		quantize = h.quant.BinsForInference
	}

	bins, err := quantize(req.F0)
	if err != nil {
		h.log.WarnContext(r.Context(), "quantize rejected",
			slog.Int("frames", len(req.F0)),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, quantizeResponse{Bins: bins, Frames: len(bins)})
}

type predictRequest struct {
	// Features is [B][T][D].
	Features [][][]float32 `json:"features"`
	Alpha    *float32      `json:"alpha,omitempty"`
}

type predictResponse struct {
	Bins [][]int `json:"bins"`
}

func (h *handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if h.pred == nil {
		writeError(w, http.StatusServiceUnavailable, "pitch predictor not loaded")
		return
	}

	var req predictRequest
	if !decodeBody(w, r, &req) {
		return
	}

	xs, frames, err := featureTensor(req.Features)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if frames > h.opts.maxFrames {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("features exceed maximum of %d frames", h.opts.maxFrames))
		return
	}

	alpha := float32(1)
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	bins, err := h.pred.InferenceBins(ctx, xs, alpha)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		status := statusFor(err)
		if status == http.StatusGatewayTimeout {
			h.log.WarnContext(r.Context(), "prediction timed out",
				slog.Int("frames", frames),
				slog.Int64("duration_ms", durationMS),
			)
			writeError(w, status, "prediction timed out")

			return
		}

		h.log.ErrorContext(r.Context(), "prediction failed",
			slog.Int("frames", frames),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())

		return
	}

	h.log.InfoContext(r.Context(), "prediction complete",
		slog.Int("batch", len(bins)),
		slog.Int("frames", frames),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, predictResponse{Bins: bins})
}

// featureTensor packs a rectangular [B][T][D] array into a tensor and
// returns it with B*T.
func featureTensor(f [][][]float32) (*tensor.Tensor, int, error) {
	if len(f) == 0 || len(f[0]) == 0 || len(f[0][0]) == 0 {
		return nil, 0, errors.New("features must be a non-empty [B][T][D] array")
	}

	b, t, d := len(f), len(f[0]), len(f[0][0])
	data := make([]float32, 0, b*t*d)

	for i, row := range f {
		if len(row) != t {
			return nil, 0, fmt.Errorf("features row %d has %d frames, want %d", i, len(row), t)
		}

		for j, frame := range row {
			if len(frame) != d {
				return nil, 0, fmt.Errorf("features[%d][%d] has %d dims, want %d", i, j, len(frame), d)
			}

			data = append(data, frame...)
		}
	}

	xs, err := tensor.New(data, []int64{int64(b), int64(t), int64(d)})
	if err != nil {
		return nil, 0, err
	}

	return xs, b * t, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, pitch.ErrOutOfRange),
		errors.Is(err, pitch.ErrNonFinite),
		errors.Is(err, pitch.ErrShapeMismatch),
		errors.Is(err, pitch.ErrEmptyContour),
		errors.Is(err, variance.ErrShapeMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.ServerConfig
	quant           Quantizer
	pred            Predictor
	shutdownTimeout time.Duration
}

func New(cfg config.ServerConfig, quant Quantizer, pred Predictor) *Server {
	return &Server{
		cfg:             cfg,
		quant:           quant,
		pred:            pred,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.quant == nil {
		return errors.New("server: quantizer is required")
	}

	h := NewHandler(s.quant, s.pred,
		WithWorkers(s.cfg.Workers),
		WithMaxFrames(s.cfg.MaxFrames),
		WithRequestTimeout(time.Duration(s.cfg.RequestTimeout)*time.Second),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("serving pitch predictor", "addr", s.cfg.ListenAddr, "predictor", s.pred != nil)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that a server at addr answers /health.
func ProbeHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
