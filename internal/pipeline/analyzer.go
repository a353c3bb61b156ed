// Package pipeline composes the full analysis dataflow: fast-path cache
// lookup, wave orchestration, escalation to the vision LLM and OCR,
// discriminator scoring, and write-behind caching of the outcome.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pixelsense/internal/config"
	"pixelsense/internal/escalate"
	"pixelsense/internal/discriminator"
	"pixelsense/internal/fastpath"
	"pixelsense/internal/imaging"
	"pixelsense/internal/logging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/orchestrator"
	"pixelsense/internal/rules"
	"pixelsense/internal/scene"
	"pixelsense/internal/signal"
	"pixelsense/internal/store"
	"pixelsense/internal/vision"
	"pixelsense/internal/wave"
)

// AnalyzeOptions controls one pipeline run.
type AnalyzeOptions struct {
	Fast    bool   // fast lane only
	NoCache bool   // skip cache lookup and write
	Format  string // requested output format: alt-text | caption | social
	Goal    string // discriminator goal; defaults to Format
}

// Analyzer is the pipeline facade. Safe for concurrent use across images.
type Analyzer struct {
	cfg      *config.Config
	registry *manifest.Registry
	orch     *orchestrator.Orchestrator
	cache    *fastpath.Cache
	store    *store.Store

	scorer  *discriminator.Scorer
	ledger  *discriminator.Ledger
	tracker *discriminator.Tracker

	prompts   *escalate.PromptBuilder
	visionLLM vision.Client
	ocr       vision.OCRClient
}

// Option injects optional collaborators.
type Option func(*Analyzer)

// WithVisionClient wires the vision LLM used for escalations.
func WithVisionClient(c vision.Client) Option {
	return func(a *Analyzer) { a.visionLLM = c }
}

// WithOCRClient wires the OCR engine used for text extraction.
func WithOCRClient(c vision.OCRClient) Option {
	return func(a *Analyzer) { a.ocr = c }
}

// New assembles the pipeline from configuration.
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	registry, err := manifest.NewRegistry(cfg.ManifestDir(), cfg.Pipeline.WaveOverrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifests: %w", err)
	}
	if cfg.Pipeline.WatchManifests {
		if err := registry.Watch(cfg.Pipeline.WaveOverrides); err != nil {
			logging.Get(logging.CategoryPipeline).Warn("manifest watch unavailable: %v", err)
		}
	}

	kernel, err := rules.NewKernel()
	if err != nil {
		return nil, fmt.Errorf("failed to build rule kernel: %w", err)
	}

	waves := wave.Build(registry, kernel)
	orch, err := orchestrator.New(
		waves,
		config.MustDuration(cfg.Pipeline.WaveTimeout),
		cfg.Pipeline.EarlyExitThreshold,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath(), store.Options{
		FlushInterval: config.MustDuration(cfg.Store.FlushInterval),
		LRUSize:       cfg.Store.LRUSize,
		LRUExpiry:     config.MustDuration(cfg.Store.LRUExpiry),
		EMAAlpha:      cfg.Store.EMAAlpha,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open signature store: %w", err)
	}

	ledger, err := discriminator.NewLedger(st.DB())
	if err != nil {
		st.Close()
		return nil, err
	}
	tracker, err := discriminator.NewTracker(st.DB(), ledger, cfg.Discriminator.DecayRate, cfg.Discriminator.PruneThreshold)
	if err != nil {
		st.Close()
		return nil, err
	}

	prompts, err := escalate.NewPromptBuilder(nil)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &Analyzer{
		cfg:      cfg,
		registry: registry,
		orch:     orch,
		cache: fastpath.NewCache(
			cfg.Cache.Capacity,
			config.MustDuration(cfg.Cache.TTL),
			cfg.Cache.PerceptualIndexCap,
		),
		store:   st,
		scorer:  discriminator.NewScorer(),
		ledger:  ledger,
		tracker: tracker,
		prompts: prompts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close stops the watcher and flushes the store.
func (a *Analyzer) Close() error {
	if err := a.registry.Close(); err != nil {
		logging.Get(logging.CategoryPipeline).Warn("manifest watcher close: %v", err)
	}
	return a.store.Close()
}

// AnalyzeImage runs the full dataflow for one image.
func (a *Analyzer) AnalyzeImage(ctx context.Context, imagePath string, opts AnalyzeOptions) (*signal.ImageAnalysisResult, error) {
	log := logging.Get(logging.CategoryPipeline)
	started := time.Now()

	img, err := imaging.Decode(imagePath)
	if err != nil {
		return nil, faultImageUnreadable(imagePath, err)
	}

	key, err := fastpath.ComputeSignatureKey(imagePath, img.Frame)
	if err != nil {
		return nil, faultImageUnreadable(imagePath, err)
	}

	if !opts.NoCache {
		if result, ok := a.lookupCached(key, started); ok {
			log.Info("cache hit for %s (%s)", imagePath, result.ProcessingTime)
			return result, nil
		}
	}

	orchOpts := orchestrator.AnalysisOptions{
		MaxParallelism:  a.cfg.Pipeline.MaxParallelism,
		TotalTimeout:    config.MustDuration(a.cfg.Pipeline.TotalTimeout),
		EnableEarlyExit: a.cfg.Pipeline.EnableEarlyExit,
	}
	if opts.Fast {
		orchOpts.LaneFilter = map[string]bool{"fast": true}
	}
	result, err := a.orch.Analyze(ctx, imagePath, img, orchOpts)
	if err != nil {
		return nil, err
	}

	a.escalateIfNeeded(ctx, img, result, opts)
	a.score(result, opts)

	if !opts.NoCache && result.Confidence >= a.cfg.Pipeline.CacheThreshold {
		a.cacheResult(key, result)
	}
	result.ProcessingTime = time.Since(started)
	return result, nil
}

// lookupCached answers from the fast path: exact content key, then
// perceptual similarity, then the durable store (hydrating the fast tier
// on the way back).
func (a *Analyzer) lookupCached(key fastpath.SignatureKey, started time.Time) (*signal.ImageAnalysisResult, bool) {
	if sig, ok := a.cache.Get(key.CombinedKey); ok {
		a.store.RecordObservation(sig.ContentHash, true, sig.Confidence)
		return resultFromCached(sig, false, started), true
	}
	if sig, ok := a.cache.FindSimilar(key.PerceptualHash, a.cfg.Cache.MaxHamming); ok {
		a.store.RecordObservation(sig.ContentHash, true, sig.Confidence)
		return resultFromCached(sig, true, started), true
	}

	stored, ok := a.store.GetByContentHash(key.ContentHash)
	if !ok || stored.Confidence < a.cfg.Pipeline.CacheThreshold {
		return nil, false
	}
	sig, err := cachedFromStored(stored)
	if err != nil {
		logging.Get(logging.CategoryPipeline).Warn("stored signature unusable: %v", err)
		return nil, false
	}
	a.cache.Set(sig.CombinedKey, sig)
	a.store.RecordObservation(stored.ContentHash, true, stored.Confidence)
	return resultFromCached(sig, false, started), true
}

// escalateIfNeeded applies the escalation rules and folds LLM/OCR output
// back into the result. Collaborator failures are recorded as signals and
// never surface as errors.
func (a *Analyzer) escalateIfNeeded(ctx context.Context, img *imaging.Decoded, result *signal.ImageAnalysisResult, opts AnalyzeOptions) {
	log := logging.Get(logging.CategoryEscalation)
	decision := escalate.Decide(result, escalate.Thresholds{
		TypeConfidenceFloor: a.cfg.Escalation.TypeConfidenceFloor,
		SharpnessFloor:      a.cfg.Escalation.SharpnessFloor,
		TextLikelinessFloor: a.cfg.Escalation.TextLikelinessFloor,
	})

	if decision.EscalateOCR && a.ocr != nil {
		var frames []int
		if img.IsAnimated {
			frames = scene.DetectTextChangeFrames(img, 8)
		}
		text, err := a.ocr.ExtractText(ctx, result.ImagePath, frames)
		if err != nil {
			log.Warn("ocr failed: %v", err)
			a.addSignal(result, signal.New("ocr.error", signal.String(err.Error()), 1.0, "OCR"))
		} else if text != "" {
			result.OCRText = text
			a.addSignal(result, signal.New(signal.KeyExtractedText, signal.String(text), 0.9, "OCR"))
		}
	}

	if decision.EscalateLLM && a.visionLLM != nil {
		prompt := a.prompts.Build(result, opts.Format)
		res, err := a.visionLLM.Analyze(ctx, result.ImagePath, prompt)
		if err != nil {
			log.Warn("vision llm failed: %v", err)
			a.addSignal(result, signal.New(signal.KeyLLMError, signal.String(err.Error()), 1.0, "VisionLLM"))
			// A failed escalation leaves the heuristic result standing but
			// less certain.
			result.Confidence = signal.Clamp01(result.Confidence * 0.85)
		} else if res != nil && res.Success {
			caption := escalate.PostProcessCaption(res.Caption, a.cfg.Escalation.MaxCaptionLength)
			if caption != "" {
				result.Caption = caption
				a.addSignal(result, signal.New(signal.KeyLLMCaption, signal.String(caption), 0.85, "VisionLLM"))
			}
		}
	}
}

// score runs the discriminator and appends the score to the ledger.
func (a *Analyzer) score(result *signal.ImageAnalysisResult, opts AnalyzeOptions) {
	goal := opts.Goal
	if goal == "" {
		goal = opts.Format
	}
	if goal == "" {
		goal = "caption"
	}

	imageHash := result.BestString(signal.KeySha256, "")
	priors, err := a.ledger.PriorScores(imageHash)
	if err != nil {
		logging.Get(logging.CategoryDiscriminator).Warn("prior scores unavailable: %v", err)
	}

	score := a.scorer.Score(discriminator.Input{
		Profile:     result,
		OCRText:     result.OCRText,
		Goal:        goal,
		PriorScores: priors,
	})
	if err := a.ledger.Append(score); err != nil {
		logging.Get(logging.CategoryDiscriminator).Warn("ledger append failed: %v", err)
	}
}

// RecordFeedback applies user feedback to a prior score.
func (a *Analyzer) RecordFeedback(scoreID string, accepted bool, text string) error {
	score, err := a.ledger.GetScore(scoreID)
	if err != nil {
		return err
	}
	return a.tracker.RecordFeedback(score, accepted, text)
}

// cacheResult writes the outcome through the fast tier and behind to the
// durable store.
func (a *Analyzer) cacheResult(key fastpath.SignatureKey, result *signal.ImageAnalysisResult) {
	now := time.Now()
	waves := make(map[string]struct{}, len(result.CompletedWaves))
	waveNames := make([]string, 0, len(result.CompletedWaves))
	for name := range result.CompletedWaves {
		waves[name] = struct{}{}
		waveNames = append(waveNames, name)
	}

	cached := &fastpath.CachedSignature{
		CombinedKey:       key.CombinedKey,
		PerceptualHash:    key.PerceptualHash,
		ContentHash:       key.ContentHash,
		CreatedAt:         now,
		LastAccessedAt:    now.UnixNano(),
		Confidence:        result.Confidence,
		SupportCount:      1,
		Caption:           result.Caption,
		OCRText:           result.OCRText,
		Width:             result.Width,
		Height:            result.Height,
		IsAnimated:        result.IsAnimated,
		ContentType:       string(result.ContentType()),
		Signals:           result.Signals,
		ContributingWaves: waves,
		IsComplete:        !result.EarlyExit,
		OriginalProcessingTimeMS: result.ProcessingTime.Milliseconds(),
	}
	a.cache.Set(key.CombinedKey, cached)

	signalsJSON, err := signal.EncodeSignals(result.Signals)
	if err != nil {
		logging.Get(logging.CategoryPipeline).Warn("signal encoding failed: %v", err)
	}
	a.store.Store(&store.StoredSignature{
		ContentHash:       key.ContentHash,
		PerceptualHash:    key.PerceptualHash,
		CombinedKey:       key.CombinedKey,
		Confidence:        result.Confidence,
		SupportCount:      1,
		ObservationCount:  1,
		Caption:           result.Caption,
		OCRText:           result.OCRText,
		Width:             result.Width,
		Height:            result.Height,
		IsAnimated:        result.IsAnimated,
		ContentType:       string(result.ContentType()),
		MIMEType:          mimeForFormat(result.Format),
		SignalsJSON:       signalsJSON,
		ContributingWaves: strings.Join(waveNames, ","),
		IsComplete:        !result.EarlyExit,
		FirstSeen:         now,
		LastSeen:          now,
		OriginalProcessingTimeMS: result.ProcessingTime.Milliseconds(),
	})
}

// addSignal folds a post-orchestration signal into the merged view.
func (a *Analyzer) addSignal(result *signal.ImageAnalysisResult, s signal.Signal) {
	if result.Signals == nil {
		result.Signals = make(map[string]signal.Signal)
	}
	result.Signals[s.Key] = s
}

// Stats aggregates the cache, store and run counters.
type Stats struct {
	Cache fastpath.Stats
	Store store.StoreStats
}

// Stats reports the pipeline's shared-state counters.
func (a *Analyzer) Stats() (Stats, error) {
	storeStats, err := a.store.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Cache: a.cache.Stats(), Store: storeStats}, nil
}

// Store exposes the durable store for maintenance commands.
func (a *Analyzer) Store() *store.Store { return a.store }

func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return ""
	}
}
