package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"pixelsense/internal/logging"
)

// GetByContentHash reads one signature, LRU first, database second. A read
// failure returns not-found and is logged; the store never throws on reads.
func (s *Store) GetByContentHash(hash string) (*StoredSignature, bool) {
	if sig, ok := s.lru.get(hash); ok {
		return sig, true
	}
	// A queued write is newer than anything in the database.
	s.pendingMu.Lock()
	if sig, ok := s.pending[hash]; ok {
		s.pendingMu.Unlock()
		s.lru.put(hash, sig)
		return sig, true
	}
	s.pendingMu.Unlock()

	sig, err := s.queryOne("content_hash = ?", hash)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.Get(logging.CategoryStore).Warn("read by content hash failed: %v", err)
		}
		return nil, false
	}
	s.lru.put(hash, sig)
	return sig, true
}

// GetByPerceptualHash reads the most recently seen signature with the exact
// perceptual hash.
func (s *Store) GetByPerceptualHash(phash uint64) (*StoredSignature, bool) {
	sig, err := s.queryOne("perceptual_hash = ? ORDER BY last_seen DESC", int64(phash))
	if err != nil {
		if err != sql.ErrNoRows {
			logging.Get(logging.CategoryStore).Warn("read by perceptual hash failed: %v", err)
		}
		return nil, false
	}
	s.lru.put(sig.ContentHash, sig)
	return sig, true
}

// GetByContentHashes batch-reads signatures, partitioning between LRU hits
// and one IN query for the rest.
func (s *Store) GetByContentHashes(hashes []string) map[string]*StoredSignature {
	out := make(map[string]*StoredSignature, len(hashes))
	var missing []string
	for _, h := range hashes {
		if sig, ok := s.lru.get(h); ok {
			out[h] = sig
		} else {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return out
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(missing)), ",")
	args := make([]interface{}, len(missing))
	for i, h := range missing {
		args[i] = h
	}
	rows, err := s.db.Query(selectColumns+" FROM signatures WHERE content_hash IN ("+placeholders+")", args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("batch read failed: %v", err)
		return out
	}
	defer rows.Close()
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("batch scan failed: %v", err)
			continue
		}
		out[sig.ContentHash] = sig
		s.lru.put(sig.ContentHash, sig)
	}
	return out
}

// Store writes the signature to the LRU immediately and queues it for
// persistence. The content hash coalesces queued writes: a newer write for
// the same hash replaces the queued one. Store never returns an error.
func (s *Store) Store(sig *StoredSignature) {
	now := time.Now()
	if sig.FirstSeen.IsZero() {
		sig.FirstSeen = now
	}
	if sig.LastSeen.IsZero() {
		sig.LastSeen = now
	}
	s.lru.put(sig.ContentHash, sig)

	s.pendingMu.Lock()
	s.pending[sig.ContentHash] = sig
	s.pendingMu.Unlock()
}

// RecordObservation folds a new observation into the stored confidence with
// an exponential moving average, reinforcing successful observations.
func (s *Store) RecordObservation(hash string, successful bool, confidence float64) {
	sig, ok := s.GetByContentHash(hash)
	if !ok {
		logging.Get(logging.CategoryStore).Debug("observation for unknown hash %s dropped", hash)
		return
	}

	alpha := s.opts.EMAAlpha
	updated := *sig
	updated.Confidence = sig.Confidence*(1-alpha) + confidence*alpha
	if successful {
		updated.Confidence = math.Min(1, updated.Confidence+0.01)
	}
	updated.ObservationCount++
	updated.LastSeen = time.Now()
	s.Store(&updated)
}

// DecayOld multiplies confidence by factor for records not seen within
// maxAge, then deletes records whose confidence fell under 0.1 with fewer
// than 3 observations.
func (s *Store) DecayOld(maxAge time.Duration, factor float64) (decayed, deleted int64, err error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.Exec("UPDATE signatures SET confidence = confidence * ? WHERE last_seen < ?", factor, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decay signatures: %w", err)
	}
	decayed, _ = res.RowsAffected()

	res, err = s.db.Exec("DELETE FROM signatures WHERE confidence < 0.1 AND observation_count < 3")
	if err != nil {
		return decayed, 0, fmt.Errorf("failed to prune signatures: %w", err)
	}
	deleted, _ = res.RowsAffected()

	// Cached copies may now carry stale confidences.
	s.lru.clear()
	logging.Get(logging.CategoryStore).Info("decay pass: %d decayed, %d deleted", decayed, deleted)
	return decayed, deleted, nil
}

// WarmupCache preloads the count most recently seen confident records into
// the LRU.
func (s *Store) WarmupCache(count int) (int, error) {
	rows, err := s.db.Query(selectColumns+` FROM signatures
		WHERE confidence > 0.5 ORDER BY last_seen DESC LIMIT ?`, count)
	if err != nil {
		return 0, fmt.Errorf("failed to warm up cache: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("warmup scan failed: %v", err)
			continue
		}
		s.lru.put(sig.ContentHash, sig)
		loaded++
	}
	logging.Get(logging.CategoryStore).Info("warmed up %d signatures", loaded)
	return loaded, nil
}

// StoreStats is the store's counter snapshot.
type StoreStats struct {
	Rows          int64
	PendingWrites int
	LRUEntries    int
	AvgConfidence float64
}

// Stats reports row counts and write-behind depth.
func (s *Store) Stats() (StoreStats, error) {
	var stats StoreStats
	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM signatures").
		Scan(&stats.Rows, &stats.AvgConfidence)
	if err != nil {
		return stats, fmt.Errorf("failed to read store stats: %w", err)
	}
	s.pendingMu.Lock()
	stats.PendingWrites = len(s.pending)
	s.pendingMu.Unlock()
	stats.LRUEntries = s.lru.len()
	return stats, nil
}

const selectColumns = `SELECT content_hash, perceptual_hash, combined_key, confidence,
	support_count, observation_count, caption, ocr_text, width, height, is_animated,
	content_type, mime_type, signals_json, contributing_waves, is_complete,
	first_seen, last_seen, processing_time_ms`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignature(row rowScanner) (*StoredSignature, error) {
	var (
		sig        StoredSignature
		phash      int64
		caption    sql.NullString
		ocrText    sql.NullString
		ctype      sql.NullString
		mtype      sql.NullString
		signals    sql.NullString
		waves      sql.NullString
		firstSeen  int64
		lastSeen   int64
	)
	err := row.Scan(&sig.ContentHash, &phash, &sig.CombinedKey, &sig.Confidence,
		&sig.SupportCount, &sig.ObservationCount, &caption, &ocrText,
		&sig.Width, &sig.Height, &sig.IsAnimated, &ctype, &mtype, &signals,
		&waves, &sig.IsComplete, &firstSeen, &lastSeen, &sig.OriginalProcessingTimeMS)
	if err != nil {
		return nil, err
	}
	sig.PerceptualHash = uint64(phash)
	sig.Caption = caption.String
	sig.OCRText = ocrText.String
	sig.ContentType = ctype.String
	sig.MIMEType = mtype.String
	sig.SignalsJSON = signals.String
	sig.ContributingWaves = waves.String
	sig.FirstSeen = time.UnixMilli(firstSeen)
	sig.LastSeen = time.UnixMilli(lastSeen)
	return &sig, nil
}

func (s *Store) queryOne(where string, args ...interface{}) (*StoredSignature, error) {
	row := s.db.QueryRow(selectColumns+" FROM signatures WHERE "+where+" LIMIT 1", args...)
	return scanSignature(row)
}
