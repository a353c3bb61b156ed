// Package fastpath answers "have we analyzed this image (or a near-identical
// one) before?" in sub-millisecond time: a content-keyed in-memory store plus
// a perceptual-hash index searched by Hamming distance.
package fastpath

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"pixelsense/internal/imaging"
)

// contentHashWindow is how much of the file participates in the content
// hash. Hashing a prefix keeps the fast path fast on large files; the file
// length is mixed in, and perceptual hashing backstops prefix collisions.
const contentHashWindow = 64 * 1024

// SignatureKey identifies an image for cache purposes.
type SignatureKey struct {
	ContentHash    string
	PerceptualHash uint64
	FileSize       int64
	CombinedKey    string
}

// ComputeSignatureKey derives the dual cache key for an image file. img may
// be nil when only the content key is needed (the perceptual hash is then 0).
func ComputeSignatureKey(path string, img image.Image) (SignatureKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return SignatureKey{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return SignatureKey{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, contentHashWindow); err != nil && err != io.EOF {
		return SignatureKey{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var sizeBytes [8]byte
	binary.LittleEndian.PutUint64(sizeBytes[:], uint64(info.Size()))
	h.Write(sizeBytes[:])

	key := SignatureKey{
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		FileSize:    info.Size(),
	}
	if img != nil {
		key.PerceptualHash = imaging.AverageHash(img)
	}
	key.CombinedKey = fmt.Sprintf("%s:%016x", key.ContentHash, key.PerceptualHash)
	return key, nil
}
