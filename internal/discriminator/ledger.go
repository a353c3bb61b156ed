package discriminator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pixelsense/internal/logging"

	"github.com/google/uuid"
)

// Ledger is the immutable score history. Records are append-only: feedback
// on a score is written as a successor record referencing the score id,
// never as a mutation.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates the ledger tables on the shared database.
func NewLedger(db *sql.DB) (*Ledger, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS discriminator_scores (
		id TEXT PRIMARY KEY,
		image_hash TEXT NOT NULL,
		image_type TEXT NOT NULL,
		goal TEXT NOT NULL,
		overall_score REAL NOT NULL,
		score_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_disc_scores_hash ON discriminator_scores(image_hash);

	CREATE TABLE IF NOT EXISTS discriminator_feedback (
		id TEXT PRIMARY KEY,
		score_id TEXT NOT NULL,
		accepted BOOLEAN NOT NULL,
		feedback TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY(score_id) REFERENCES discriminator_scores(id)
	);
	CREATE INDEX IF NOT EXISTS idx_disc_feedback_score ON discriminator_feedback(score_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Append writes one score record.
func (l *Ledger) Append(score *Score) error {
	blob, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}
	_, err = l.db.Exec(
		"INSERT INTO discriminator_scores (id, image_hash, image_type, goal, overall_score, score_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		score.ID, score.ImageHash, score.ImageType, score.Goal, score.OverallScore, string(blob), score.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append score: %w", err)
	}
	logging.Get(logging.CategoryDiscriminator).Debug("ledger: appended score %s", score.ID)
	return nil
}

// AppendFeedback writes a feedback record referencing scoreID.
func (l *Ledger) AppendFeedback(scoreID string, accepted bool, text string) error {
	_, err := l.db.Exec(
		"INSERT INTO discriminator_feedback (id, score_id, accepted, feedback, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), scoreID, accepted, text, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// PriorScores returns all scores recorded for an image hash, oldest first.
func (l *Ledger) PriorScores(imageHash string) ([]*Score, error) {
	rows, err := l.db.Query(
		"SELECT score_json FROM discriminator_scores WHERE image_hash = ? ORDER BY created_at ASC", imageHash)
	if err != nil {
		return nil, fmt.Errorf("failed to read prior scores: %w", err)
	}
	defer rows.Close()

	var out []*Score
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		var score Score
		if err := json.Unmarshal([]byte(blob), &score); err != nil {
			logging.Get(logging.CategoryDiscriminator).Warn("skipping unreadable score record: %v", err)
			continue
		}
		out = append(out, &score)
	}
	return out, nil
}

// GetScore reads one score by id.
func (l *Ledger) GetScore(id string) (*Score, error) {
	var blob string
	err := l.db.QueryRow("SELECT score_json FROM discriminator_scores WHERE id = ?", id).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("failed to read score %s: %w", id, err)
	}
	var score Score
	if err := json.Unmarshal([]byte(blob), &score); err != nil {
		return nil, fmt.Errorf("failed to decode score %s: %w", id, err)
	}
	return &score, nil
}
