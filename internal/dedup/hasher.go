package dedup

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"courier/internal/constants"
	"courier/pkg/models"
)

// Hasher computes structural content hashes. Values are encoded as
// canonical CBOR first, so equal structures hash equally regardless of map
// order or pointer identity.
type Hasher struct {
	algorithm string
}

// NewHasher falls back to sha256 for an empty or unknown algorithm.
func NewHasher(algorithm string) *Hasher {
	algorithm = strings.ToLower(algorithm)
	switch algorithm {
	case constants.HashMD5, constants.HashSHA256, constants.HashBLAKE3:
	default:
		algorithm = constants.HashSHA256
	}
	return &Hasher{algorithm: algorithm}
}

func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash returns the hex digest of v's canonical encoding.
func (h *Hasher) Hash(v interface{}) (string, error) {
	data, err := models.CanonicalCBOR(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value for hashing: %w", err)
	}
	return h.sum(data), nil
}

// HashEvent hashes the event's tagged envelope.
func (h *Hasher) HashEvent(e models.Event) (string, error) {
	if e.Payload == nil {
		return "", fmt.Errorf("cannot hash an event without payload")
	}
	return h.Hash(e)
}

func (h *Hasher) sum(data []byte) string {
	switch h.algorithm {
	case constants.HashMD5:
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	case constants.HashBLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}
