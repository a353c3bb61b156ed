package imaging

import (
	"image"
	"math/bits"
)

// AverageHash computes the 64-bit average hash (aHash) of img: the image is
// resampled to an 8x8 BT.601 grayscale thumbnail and bit i is set iff pixel i
// is at or above the mean. Near-duplicates (resizes, recompressions) land
// within a small Hamming distance of each other.
func AverageHash(img image.Image) uint64 {
	thumb := Resize(img, 8, 8)
	gray := Grayscale(thumb)

	var mean float64
	for _, v := range gray {
		mean += v
	}
	mean /= 64

	var hash uint64
	for i, v := range gray {
		if v >= mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
