package signal

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBlackboardAppendOnly(t *testing.T) {
	b := NewBlackboard("test.png")

	first := New("content.type", String("Photo"), 0.6, "type")
	second := New("content.type", String("Diagram"), 0.9, "type")
	b.Write(first)
	b.Write(second)

	all := b.ReadAll("content.type")
	if len(all) != 2 {
		t.Fatalf("ReadAll returned %d signals, want 2", len(all))
	}
	if v, _ := all[0].Value.AsString(); v != "Photo" {
		t.Errorf("first write not retained, got %q", v)
	}
	if v, _ := all[1].Value.AsString(); v != "Diagram" {
		t.Errorf("second write not retained, got %q", v)
	}
}

func TestBlackboardReadBest(t *testing.T) {
	b := NewBlackboard("test.png")
	b.Write(New("quality.sharpness", Float(100), 0.5, "blur"))
	b.Write(New("quality.sharpness", Float(200), 0.8, "blur"))
	b.Write(New("quality.sharpness", Float(150), 0.3, "other"))

	best, ok := b.ReadBest("quality.sharpness")
	if !ok {
		t.Fatal("ReadBest found nothing")
	}
	if v, _ := best.Value.AsFloat(); v != 200 {
		t.Errorf("ReadBest value = %v, want 200", v)
	}

	if _, ok := b.ReadBest("missing.key"); ok {
		t.Error("ReadBest returned a signal for a missing key")
	}
}

func TestBlackboardReadBestTieBreaksByTimestamp(t *testing.T) {
	b := NewBlackboard("test.png")
	older := Signal{Key: "k", Value: String("old"), Confidence: 0.7, Timestamp: time.Now().Add(-time.Minute)}
	newer := Signal{Key: "k", Value: String("new"), Confidence: 0.7, Timestamp: time.Now()}
	b.Write(older)
	b.Write(newer)

	best, _ := b.ReadBest("k")
	if v, _ := best.Value.AsString(); v != "new" {
		t.Errorf("tie should go to latest timestamp, got %q", v)
	}
}

func TestBlackboardConcurrentWrites(t *testing.T) {
	b := NewBlackboard("test.png")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Write(New(fmt.Sprintf("key.%d", i%4), Int(int64(i)), 0.5, "writer"))
			b.Has("key.0")
			b.Snapshot()
		}(i)
	}
	wg.Wait()

	total := 0
	for _, key := range b.Keys() {
		total += len(b.ReadAll(key))
	}
	if total != 32 {
		t.Errorf("lost writes: got %d signals, want 32", total)
	}
}

func TestSnapshotIsPointInTime(t *testing.T) {
	b := NewBlackboard("test.png")
	b.Write(New("a", Int(1), 1.0, "w"))
	snap := b.Snapshot()
	b.Write(New("b", Int(2), 1.0, "w"))

	if _, ok := snap["b"]; ok {
		t.Error("snapshot reflects writes made after it was taken")
	}
	if len(snap) != 1 {
		t.Errorf("snapshot has %d keys, want 1", len(snap))
	}
}
