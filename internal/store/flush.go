package store

import (
	"fmt"
	"time"

	"pixelsense/internal/logging"
)

// flushLoop drains pending writes on a timer until Close. The loop ignores
// cancellation except shutdown: write-behind persistence must survive the
// analyses that queued it.
func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				logging.Get(logging.CategoryStore).Warn("flush failed, will retry: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Flush drains the pending-writes map into one transaction under the
// single-flight lock. On failure the transaction rolls back and the drained
// writes are requeued for the next tick (newer queued writes win).
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.pendingMu.Lock()
	if len(s.pending) == 0 {
		s.pendingMu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make(map[string]*StoredSignature)
	s.pendingMu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "Flush")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to begin flush transaction: %w", err)
	}

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		tx.Rollback()
		s.requeue(batch)
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range batch {
		_, err := stmt.Exec(
			sig.ContentHash,
			int64(sig.PerceptualHash),
			sig.CombinedKey,
			sig.Confidence,
			sig.SupportCount,
			sig.ObservationCount,
			nullable(sig.Caption),
			nullable(sig.OCRText),
			sig.Width,
			sig.Height,
			sig.IsAnimated,
			nullable(sig.ContentType),
			nullable(sig.MIMEType),
			nullable(sig.SignalsJSON),
			nullable(sig.ContributingWaves),
			sig.IsComplete,
			sig.FirstSeen.UnixMilli(),
			sig.LastSeen.UnixMilli(),
			sig.OriginalProcessingTimeMS,
		)
		if err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("failed to upsert %s: %w", sig.ContentHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to commit flush: %w", err)
	}
	logging.Get(logging.CategoryStore).Debug("flushed %d signatures", len(batch))
	return nil
}

// upsertSQL coalesces nullable fields (a cached caption survives a later
// captionless write) and ORs the completeness flag.
const upsertSQL = `
INSERT INTO signatures (
	content_hash, perceptual_hash, combined_key, confidence, support_count,
	observation_count, caption, ocr_text, width, height, is_animated,
	content_type, mime_type, signals_json, contributing_waves, is_complete,
	first_seen, last_seen, processing_time_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(content_hash) DO UPDATE SET
	perceptual_hash = excluded.perceptual_hash,
	combined_key = excluded.combined_key,
	confidence = excluded.confidence,
	support_count = MAX(signatures.support_count, excluded.support_count),
	observation_count = MAX(signatures.observation_count, excluded.observation_count),
	caption = COALESCE(excluded.caption, signatures.caption),
	ocr_text = COALESCE(excluded.ocr_text, signatures.ocr_text),
	width = excluded.width,
	height = excluded.height,
	is_animated = excluded.is_animated,
	content_type = COALESCE(excluded.content_type, signatures.content_type),
	mime_type = COALESCE(excluded.mime_type, signatures.mime_type),
	signals_json = COALESCE(excluded.signals_json, signatures.signals_json),
	contributing_waves = COALESCE(excluded.contributing_waves, signatures.contributing_waves),
	is_complete = signatures.is_complete OR excluded.is_complete,
	first_seen = MIN(signatures.first_seen, excluded.first_seen),
	last_seen = MAX(signatures.last_seen, excluded.last_seen),
	processing_time_ms = excluded.processing_time_ms
`

// requeue restores a failed batch without clobbering newer queued writes.
func (s *Store) requeue(batch map[string]*StoredSignature) {
	s.pendingMu.Lock()
	for hash, sig := range batch {
		if _, exists := s.pending[hash]; !exists {
			s.pending[hash] = sig
		}
	}
	s.pendingMu.Unlock()
}

// nullable maps empty strings to NULL so the upsert's COALESCE semantics
// apply to absent values.
func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
