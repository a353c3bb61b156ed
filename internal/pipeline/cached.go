package pipeline

import (
	"strings"
	"time"

	"pixelsense/internal/faults"
	"pixelsense/internal/fastpath"
	"pixelsense/internal/signal"
	"pixelsense/internal/store"
)

// resultFromCached reconstructs an analysis result from a cache entry.
func resultFromCached(sig *fastpath.CachedSignature, perceptual bool, started time.Time) *signal.ImageAnalysisResult {
	signals := sig.Signals
	if signals == nil {
		signals = map[string]signal.Signal{}
	}
	waves := make(map[string]struct{}, len(sig.ContributingWaves))
	for name := range sig.ContributingWaves {
		waves[name] = struct{}{}
	}

	result := &signal.ImageAnalysisResult{
		Confidence:     sig.Confidence,
		Caption:        sig.Caption,
		OCRText:        sig.OCRText,
		Signals:        signals,
		CompletedWaves: waves,
		IsAnimated:     sig.IsAnimated,
		Width:          sig.Width,
		Height:         sig.Height,
		IsCacheHit:     true,
		PerceptualHit:  perceptual,
		ProcessingTime: time.Since(started),
		StartedAt:      started,
	}
	if names, ok := signals[signal.KeyDominantNames]; ok {
		if list, ok := names.Value.AsStringList(); ok && len(list) > 0 {
			result.DominantColor = list[0]
		}
	}
	return result
}

// cachedFromStored hydrates a fast-path entry from a durable record.
func cachedFromStored(stored *store.StoredSignature) (*fastpath.CachedSignature, error) {
	signals, err := signal.DecodeSignals(stored.SignalsJSON)
	if err != nil {
		return nil, err
	}
	waves := make(map[string]struct{})
	for _, name := range strings.Split(stored.ContributingWaves, ",") {
		if name != "" {
			waves[name] = struct{}{}
		}
	}
	return &fastpath.CachedSignature{
		CombinedKey:       stored.CombinedKey,
		PerceptualHash:    stored.PerceptualHash,
		ContentHash:       stored.ContentHash,
		CreatedAt:         stored.FirstSeen,
		LastAccessedAt:    time.Now().UnixNano(),
		Confidence:        stored.Confidence,
		SupportCount:      stored.SupportCount,
		Caption:           stored.Caption,
		OCRText:           stored.OCRText,
		Width:             stored.Width,
		Height:            stored.Height,
		IsAnimated:        stored.IsAnimated,
		ContentType:       stored.ContentType,
		Signals:           signals,
		ContributingWaves: waves,
		IsComplete:        stored.IsComplete,
		OriginalProcessingTimeMS: stored.OriginalProcessingTimeMS,
	}, nil
}

func faultImageUnreadable(path string, err error) error {
	return faults.Wrap(faults.ImageUnreadable, err, "cannot read %s", path)
}
