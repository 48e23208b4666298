package store

import (
	"fmt"

	"github.com/minio/highwayhash"
)

// hashKey is fixed so content hashes stay comparable across runs against a
// persisted index.
var hashKey = []byte("unsafe-ls.declaration-index.v1.k")

// ContentHash returns a hex-encoded 64-bit HighwayHash of data. Files whose
// hash matches the stored one are not re-extracted.
func ContentHash(data []byte) (string, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
