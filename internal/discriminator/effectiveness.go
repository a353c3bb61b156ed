package discriminator

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"pixelsense/internal/logging"
)

// Effectiveness tracks how often one signal agreed with user feedback for a
// given image type and goal. Weight lives in [0,2]; 1.0 is neutral.
type Effectiveness struct {
	SignalName        string
	ImageType         string
	Goal              string
	Weight            float64
	EvaluationCount   int
	AgreementCount    int
	DisagreementCount int
	LastEvaluated     time.Time
	DecayRate         float64
}

// DecayedWeight applies time decay: weight * decay^days since evaluation.
func (e *Effectiveness) DecayedWeight(now time.Time) float64 {
	if e.LastEvaluated.IsZero() {
		return e.Weight
	}
	days := now.Sub(e.LastEvaluated).Hours() / 24
	if days <= 0 {
		return e.Weight
	}
	return e.Weight * math.Pow(e.DecayRate, days)
}

// Tracker owns the effectiveness table and the feedback learning rule. All
// read-modify-write cycles run in a single writer critical section.
type Tracker struct {
	mu sync.Mutex
	db *sql.DB

	decayRate      float64
	pruneThreshold float64

	ledger *Ledger
}

// NewTracker creates the tracker over the shared database.
func NewTracker(db *sql.DB, ledger *Ledger, decayRate, pruneThreshold float64) (*Tracker, error) {
	if decayRate <= 0 || decayRate > 1 {
		decayRate = 0.95
	}
	if pruneThreshold <= 0 {
		pruneThreshold = 0.1
	}
	schema := `
	CREATE TABLE IF NOT EXISTS discriminator_effectiveness (
		signal_name TEXT NOT NULL,
		image_type TEXT NOT NULL,
		goal TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		evaluation_count INTEGER NOT NULL DEFAULT 0,
		agreement_count INTEGER NOT NULL DEFAULT 0,
		disagreement_count INTEGER NOT NULL DEFAULT 0,
		last_evaluated INTEGER NOT NULL DEFAULT 0,
		decay_rate REAL NOT NULL DEFAULT 0.95,
		PRIMARY KEY (signal_name, image_type, goal)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create effectiveness schema: %w", err)
	}
	return &Tracker{db: db, ledger: ledger, decayRate: decayRate, pruneThreshold: pruneThreshold}, nil
}

// RecordFeedback appends the feedback to the ledger and updates every
// contributing signal's effectiveness with the EMA-style learning rule:
// learning_rate = 1/sqrt(evaluations+1), weight moves by +-lr from its
// time-decayed value, clamped to [0,2]. Discriminators whose decayed weight
// falls under the prune threshold are retired.
func (t *Tracker) RecordFeedback(score *Score, accepted bool, text string) error {
	if err := t.ledger.AppendFeedback(score.ID, accepted, text); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	log := logging.Get(logging.CategoryDiscriminator)
	for name, contrib := range score.SignalContributions {
		eff, err := t.load(name, score.ImageType, score.Goal)
		if err != nil {
			log.Warn("effectiveness load failed for %s: %v", name, err)
			continue
		}

		agreed := didSignalAgree(contrib, accepted, score.OverallScore)
		lr := 1 / math.Sqrt(float64(eff.EvaluationCount)+1)

		decayed := eff.DecayedWeight(now)
		if agreed {
			eff.Weight = clampWeight(decayed + lr)
			eff.AgreementCount++
		} else {
			eff.Weight = clampWeight(decayed - lr)
			eff.DisagreementCount++
		}
		eff.EvaluationCount++
		eff.LastEvaluated = now

		if eff.DecayedWeight(now) < t.pruneThreshold {
			log.Info("retiring discriminator %s/%s/%s (weight %.3f)", name, score.ImageType, score.Goal, eff.Weight)
			if err := t.retire(eff); err != nil {
				log.Warn("retire failed: %v", err)
			}
			continue
		}
		if err := t.save(eff); err != nil {
			log.Warn("effectiveness save failed for %s: %v", name, err)
		}
	}
	return nil
}

// didSignalAgree decides whether one contribution was vindicated by the
// feedback: strong signals on accepted results agree, weak signals on
// rejected results agree, contradictions disagree. Near the middle the
// signal has no real prediction, so the overall score arbitrates.
func didSignalAgree(contrib SignalContribution, accepted bool, overall float64) bool {
	if contrib.Strength > 0.4 && contrib.Strength < 0.6 {
		return (overall >= 0.5) == accepted
	}
	strong := contrib.Strength >= 0.5
	return strong == accepted
}

// Weight returns the current decayed weight for a discriminator, 1.0 when
// unseen.
func (t *Tracker) Weight(signalName, imageType, goal string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	eff, err := t.load(signalName, imageType, goal)
	if err != nil {
		return 1.0
	}
	return eff.DecayedWeight(time.Now())
}

// load reads or initializes an effectiveness row. Caller holds mu.
func (t *Tracker) load(signalName, imageType, goal string) (*Effectiveness, error) {
	eff := &Effectiveness{
		SignalName: signalName,
		ImageType:  imageType,
		Goal:       goal,
		Weight:     1.0,
		DecayRate:  t.decayRate,
	}
	var lastEvaluated int64
	err := t.db.QueryRow(`SELECT weight, evaluation_count, agreement_count, disagreement_count,
		last_evaluated, decay_rate FROM discriminator_effectiveness
		WHERE signal_name = ? AND image_type = ? AND goal = ?`,
		signalName, imageType, goal).
		Scan(&eff.Weight, &eff.EvaluationCount, &eff.AgreementCount,
			&eff.DisagreementCount, &lastEvaluated, &eff.DecayRate)
	if err == sql.ErrNoRows {
		return eff, nil
	}
	if err != nil {
		return nil, err
	}
	if lastEvaluated > 0 {
		eff.LastEvaluated = time.UnixMilli(lastEvaluated)
	}
	return eff, nil
}

func (t *Tracker) save(eff *Effectiveness) error {
	_, err := t.db.Exec(`INSERT INTO discriminator_effectiveness
		(signal_name, image_type, goal, weight, evaluation_count, agreement_count,
		 disagreement_count, last_evaluated, decay_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signal_name, image_type, goal) DO UPDATE SET
			weight = excluded.weight,
			evaluation_count = excluded.evaluation_count,
			agreement_count = excluded.agreement_count,
			disagreement_count = excluded.disagreement_count,
			last_evaluated = excluded.last_evaluated,
			decay_rate = excluded.decay_rate`,
		eff.SignalName, eff.ImageType, eff.Goal, eff.Weight, eff.EvaluationCount,
		eff.AgreementCount, eff.DisagreementCount, eff.LastEvaluated.UnixMilli(), eff.DecayRate)
	return err
}

func (t *Tracker) retire(eff *Effectiveness) error {
	_, err := t.db.Exec(
		"DELETE FROM discriminator_effectiveness WHERE signal_name = ? AND image_type = ? AND goal = ?",
		eff.SignalName, eff.ImageType, eff.Goal)
	return err
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 2 {
		return 2
	}
	return w
}
