package signal

import "time"

// DetectionContribution is what a wave returns: its signals plus a weighted,
// salient delta applied to the overall confidence.
type DetectionContribution struct {
	Detector         string
	Category         string
	ConfidenceDelta  float64 // [-0.5, 0.5]
	Weight           float64 // >= 0
	Salience         float64 // [0, 1]
	Reason           string
	Signals          map[string]Signal
	TriggerEarlyExit bool
	EarlyExitVerdict string
}

// NewContribution constructs a contribution with clamped fields.
func NewContribution(detector, category string, delta, weight, salience float64, reason string) DetectionContribution {
	if delta < -0.5 {
		delta = -0.5
	}
	if delta > 0.5 {
		delta = 0.5
	}
	if weight < 0 {
		weight = 0
	}
	return DetectionContribution{
		Detector:        detector,
		Category:        category,
		ConfidenceDelta: delta,
		Weight:          weight,
		Salience:        Clamp01(salience),
		Reason:          reason,
		Signals:         make(map[string]Signal),
	}
}

// AddSignal attaches a signal to the contribution, keyed by its signal key.
func (c *DetectionContribution) AddSignal(s Signal) {
	if c.Signals == nil {
		c.Signals = make(map[string]Signal)
	}
	c.Signals[s.Key] = s
}

// InfoContribution builds a neutral, weightless contribution carrying
// exactly one low-confidence info signal. Used when a wave fails or times
// out: it records what happened without moving the merged confidence or
// blocking later rounds.
func InfoContribution(detector, reason string) DetectionContribution {
	c := NewContribution(detector, "info", 0, 0, 0, reason)
	c.AddSignal(New("waves."+detector+".info", String(reason), 0.1, detector))
	return c
}

// MergedResult is the output of merging all completed contributions.
type MergedResult struct {
	Confidence float64
	Signals    map[string]Signal
}

// Merge folds contributions into the final signal view and confidence.
// Per key, the value comes from the contribution with the highest
// weight x salience; ties go to the latest signal timestamp. Overall
// confidence is the salience-weighted mean of (0.5 + delta), clamped to
// [0,1]; with zero total salience it is 0.5.
func Merge(contributions []DetectionContribution) MergedResult {
	merged := make(map[string]Signal)
	bestRank := make(map[string]float64)
	bestTime := make(map[string]time.Time)

	var weightedSum, salienceSum float64
	for _, c := range contributions {
		salienceSum += c.Salience
		weightedSum += c.Salience * (0.5 + c.ConfidenceDelta)

		rank := c.Weight * c.Salience
		for key, s := range c.Signals {
			if cur, ok := bestRank[key]; !ok || rank > cur ||
				(rank == cur && s.Timestamp.After(bestTime[key])) {
				merged[key] = s
				bestRank[key] = rank
				bestTime[key] = s.Timestamp
			}
		}
	}

	confidence := 0.5
	if salienceSum > 0 {
		confidence = Clamp01(weightedSum / salienceSum)
	}
	return MergedResult{Confidence: confidence, Signals: merged}
}
