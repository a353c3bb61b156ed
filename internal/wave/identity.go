package wave

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// IdentityWave emits the image's intrinsic identity signals: content digest,
// format, dimensions, aspect ratio, and animation flags. It has no triggers
// and runs in the fast lane in round one.
type IdentityWave struct {
	Base
}

// NewIdentityWave builds the identity wave from its manifest.
func NewIdentityWave(m *manifest.WaveManifest) *IdentityWave {
	return &IdentityWave{Base: NewBase(m)}
}

// Contribute hashes the file and reads the decoded header signals.
func (w *IdentityWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if info, ok := requireImage(b, w.Name()); !ok {
		return info, nil
	}

	digest, err := fileSha256(b.ImagePath)
	if err != nil {
		Logf("identity: hashing %s failed: %v", b.ImagePath, err)
		return []signal.DetectionContribution{
			signal.InfoContribution(w.Name(), fmt.Sprintf("failed to hash file: %v", err)),
		}, nil
	}
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	img := b.Image
	aspect := 0.0
	if img.Height > 0 {
		aspect = float64(img.Width) / float64(img.Height)
	}

	c := w.Contribution("identity", 0.1, 1.0, 0.3, "intrinsic identity extracted")
	c.AddSignal(w.Emit(signal.KeySha256, signal.String(digest), 1.0))
	c.AddSignal(w.Emit(signal.KeyFormat, signal.String(img.Format), 1.0))
	c.AddSignal(w.Emit(signal.KeyWidth, signal.Int(int64(img.Width)), 1.0))
	c.AddSignal(w.Emit(signal.KeyHeight, signal.Int(int64(img.Height)), 1.0))
	c.AddSignal(w.Emit(signal.KeyAspectRatio, signal.Float(aspect), 1.0))
	c.AddSignal(w.Emit(signal.KeyIsAnimated, signal.Bool(img.IsAnimated), 1.0))
	c.AddSignal(w.Emit(signal.KeyFrameCount, signal.Int(int64(img.FrameCount())), 1.0))
	return []signal.DetectionContribution{c}, nil
}

// fileSha256 hashes the whole file. The fast-path cache uses a cheaper
// truncated key; this full digest is the authoritative identity signal.
func fileSha256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
