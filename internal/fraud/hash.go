package fraud

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

const hashBits = 64

// perceptualHash decodes the image and returns its 64-bit pHash
func perceptualHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return h.GetHash(), nil
}

// hashSimilarity is 1 - hamming/64
func hashSimilarity(a, b uint64) (float64, error) {
	distance, err := goimagehash.NewImageHash(a, goimagehash.PHash).Distance(goimagehash.NewImageHash(b, goimagehash.PHash))
	if err != nil {
		return 0, err
	}
	return 1 - float64(distance)/hashBits, nil
}

// bestHashMatch returns the most similar prior hash at or above threshold
func bestHashMatch(hash uint64, prior []HashRecord, threshold float64) *Match {
	var best *Match
	for _, rec := range prior {
		sim, err := hashSimilarity(hash, rec.Hash)
		if err != nil || sim < threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{ClaimID: rec.ClaimID, Similarity: sim}
		}
	}
	return best
}
