package signal

import "time"

// ImageAnalysisResult is the merged outcome of one orchestrated run.
type ImageAnalysisResult struct {
	Confidence     float64
	Caption        string
	OCRText        string
	DominantColor  string
	Signals        map[string]Signal
	CompletedWaves map[string]struct{}
	EarlyExit      bool
	EarlyExitReason string

	// Run bookkeeping consumed by the cache and the pipeline.
	ImagePath        string
	IsAnimated       bool
	Width            int
	Height           int
	Format           string
	IsCacheHit       bool
	PerceptualHit    bool
	ProcessingTime   time.Duration
	StartedAt        time.Time
}

// Completed reports whether the named wave finished without error.
func (r *ImageAnalysisResult) Completed(wave string) bool {
	_, ok := r.CompletedWaves[wave]
	return ok
}

// Best returns the merged signal for key, if present.
func (r *ImageAnalysisResult) Best(key string) (Signal, bool) {
	s, ok := r.Signals[key]
	return s, ok
}

// BestFloat returns the merged signal value for key coerced to float64.
func (r *ImageAnalysisResult) BestFloat(key string, def float64) float64 {
	s, ok := r.Signals[key]
	if !ok {
		return def
	}
	v, ok := s.Value.AsFloat()
	if !ok {
		return def
	}
	return v
}

// BestString returns the merged string value for key.
func (r *ImageAnalysisResult) BestString(key, def string) string {
	s, ok := r.Signals[key]
	if !ok {
		return def
	}
	v, ok := s.Value.AsString()
	if !ok {
		return def
	}
	return v
}

// ContentType returns the detected content type, or TypeUnknown.
func (r *ImageAnalysisResult) ContentType() ContentType {
	return ContentType(r.BestString(KeyContentType, string(TypeUnknown)))
}
