package discriminator

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestTracker(t *testing.T) (*Tracker, *Ledger) {
	t.Helper()
	db := openTestDB(t)
	ledger, err := NewLedger(db)
	require.NoError(t, err)
	tracker, err := NewTracker(db, ledger, 0.95, 0.1)
	require.NoError(t, err)
	return tracker, ledger
}

func scoredWith(contribs map[string]SignalContribution, overall float64) *Score {
	return &Score{
		ID:                  "score-1",
		ImageHash:           "hash",
		Timestamp:           time.Now(),
		ImageType:           "Photo",
		Goal:                "caption",
		SignalContributions: contribs,
		OverallScore:        overall,
	}
}

func TestLedgerAppendAndPriors(t *testing.T) {
	_, ledger := newTestTracker(t)

	score := scoredWith(map[string]SignalContribution{
		"quality.sharpness": {Strength: 0.8, Vectors: []string{VectorStructuralAlignment}},
	}, 0.7)
	require.NoError(t, ledger.Append(score))

	priors, err := ledger.PriorScores("hash")
	require.NoError(t, err)
	require.Len(t, priors, 1)
	assert.Equal(t, score.ID, priors[0].ID)
	assert.InDelta(t, 0.7, priors[0].OverallScore, 1e-9)
	assert.Contains(t, priors[0].SignalContributions, "quality.sharpness")

	priors, err = ledger.PriorScores("other-hash")
	require.NoError(t, err)
	assert.Empty(t, priors)
}

func TestRecordFeedbackMovesWeight(t *testing.T) {
	tracker, ledger := newTestTracker(t)

	score := scoredWith(map[string]SignalContribution{
		"strong.signal": {Strength: 0.9, Vectors: []string{VectorStructuralAlignment}},
		"weak.signal":   {Strength: 0.1, Vectors: []string{VectorStructuralAlignment}},
	}, 0.8)
	require.NoError(t, ledger.Append(score))

	// Accepted high-score result: the strong signal agreed, the weak one
	// contradicted it.
	require.NoError(t, tracker.RecordFeedback(score, true, "looks right"))

	// learning rate for a first evaluation is 1/sqrt(1) = 1. The weak
	// signal's weight falls to 0, under the prune threshold, so its row is
	// retired and it reads as the neutral 1.0 again.
	assert.InDelta(t, 2.0, tracker.Weight("strong.signal", "Photo", "caption"), 0.01)
	assert.InDelta(t, 1.0, tracker.Weight("weak.signal", "Photo", "caption"), 0.01)
}

func TestRecordFeedbackRejectedLowScore(t *testing.T) {
	tracker, ledger := newTestTracker(t)

	score := scoredWith(map[string]SignalContribution{
		"weak.signal": {Strength: 0.1, Vectors: []string{VectorOCRFidelity}},
	}, 0.2)
	require.NoError(t, ledger.Append(score))

	// A weak signal on a rejected low-score result called it correctly.
	require.NoError(t, tracker.RecordFeedback(score, false, ""))
	assert.InDelta(t, 2.0, tracker.Weight("weak.signal", "Photo", "caption"), 0.01)
}

func TestWeightClamping(t *testing.T) {
	assert.Equal(t, 0.0, clampWeight(-0.5))
	assert.Equal(t, 2.0, clampWeight(2.5))
	assert.Equal(t, 1.3, clampWeight(1.3))
}

func TestDidSignalAgree(t *testing.T) {
	tests := []struct {
		name     string
		strength float64
		accepted bool
		overall  float64
		want     bool
	}{
		{"strong signal, accepted high score", 0.9, true, 0.8, true},
		{"weak signal, accepted high score", 0.1, true, 0.8, false},
		{"strong signal, rejected high score", 0.9, false, 0.8, false},
		{"weak signal, rejected low score", 0.1, false, 0.2, true},
		{"mid signal defers to score, accepted high", 0.5, true, 0.8, true},
		{"mid signal defers to score, accepted low", 0.5, true, 0.2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := didSignalAgree(SignalContribution{Strength: tt.strength}, tt.accepted, tt.overall)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecayedWeight(t *testing.T) {
	eff := &Effectiveness{
		Weight:        1.0,
		DecayRate:     0.95,
		LastEvaluated: time.Now().Add(-10 * 24 * time.Hour),
	}
	decayed := eff.DecayedWeight(time.Now())
	assert.InDelta(t, 0.5987, decayed, 0.01) // 0.95^10
}

func TestRetirementBelowPruneThreshold(t *testing.T) {
	tracker, ledger := newTestTracker(t)

	// Hammer a signal with contradicting feedback until its weight decays
	// under the prune threshold.
	for i := 0; i < 6; i++ {
		score := scoredWith(map[string]SignalContribution{
			"noisy.signal": {Strength: 0.9, Vectors: []string{VectorOCRFidelity}},
		}, 0.8)
		score.ID = score.ID + string(rune('a'+i))
		require.NoError(t, ledger.Append(score))
		require.NoError(t, tracker.RecordFeedback(score, false, "wrong"))
	}

	// Unseen (retired) discriminators read as the neutral weight.
	assert.Equal(t, 1.0, tracker.Weight("noisy.signal", "Photo", "caption"))
}
