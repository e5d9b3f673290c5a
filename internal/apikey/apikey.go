// Package apikey implements the stored credential transform for API keys:
// an iterated SHA-256 chain encoded as "<iterations>:<hex>".
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// DefaultIterations matches the stored credential format already in the wild.
// Changing it changes the on-disk contract, so treat it as frozen.
const DefaultIterations = 10000

// Hash derives the stored form of a plaintext API key. The first digest is
// taken over the plaintext bytes; every following round digests the hex
// string of the previous round. Deterministic: no salt.
func Hash(plaintext string, iterations int) string {
	if iterations < 1 {
		iterations = 1
	}
	sum := sha256.Sum256([]byte(plaintext))
	digest := hex.EncodeToString(sum[:])
	for i := 1; i < iterations; i++ {
		sum = sha256.Sum256([]byte(digest))
		digest = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%d:%s", iterations, digest)
}

// Hasher bounds how many digest chains may run at once so a burst of
// authentication work cannot monopolize the CPUs serving other requests.
type Hasher struct {
	iterations int
	sem        *semaphore.Weighted
}

// NewHasher returns a Hasher with the given iteration count (DefaultIterations
// when n <= 0) and a concurrency bound of GOMAXPROCS.
func NewHasher(n int) *Hasher {
	if n <= 0 {
		n = DefaultIterations
	}
	return &Hasher{
		iterations: n,
		sem:        semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// HashContext computes the stored form, waiting for a worker slot first.
// The wait is cancellable through ctx; the digest loop itself is not.
func (h *Hasher) HashContext(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)
	return Hash(plaintext, h.iterations), nil
}

// Iterations reports the configured chain length.
func (h *Hasher) Iterations() int {
	return h.iterations
}
