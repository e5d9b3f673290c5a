package apikey

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestHashDeterministicAndWellFormed(t *testing.T) {
	pattern := regexp.MustCompile(`^10000:[0-9a-f]{64}$`)
	first := Hash("secretA1", DefaultIterations)
	if !pattern.MatchString(first) {
		t.Fatalf("hash %q does not match <n>:<64 hex>", first)
	}
	for i := 0; i < 3; i++ {
		if got := Hash("secretA1", DefaultIterations); got != first {
			t.Fatalf("hash not deterministic: %q vs %q", got, first)
		}
	}
}

func TestHashDistinguishesKeys(t *testing.T) {
	if Hash("secretA1", DefaultIterations) == Hash("secretB2", DefaultIterations) {
		t.Fatal("distinct keys produced the same stored form")
	}
}

func TestHashIterationPrefix(t *testing.T) {
	got := Hash("k", 3)
	if !strings.HasPrefix(got, "3:") {
		t.Fatalf("hash %q does not carry iteration prefix", got)
	}
	if got == Hash("k", 4) {
		t.Fatal("different iteration counts produced the same stored form")
	}
}

func TestHashSingleIterationIsPlainDigest(t *testing.T) {
	// One round is just sha256 of the plaintext, hex encoded.
	const want = "1:2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
	if got := Hash("secret", 1); got != want {
		t.Fatalf("Hash(secret, 1) = %q, want %q", got, want)
	}
}

func TestHasherMatchesPackageFunction(t *testing.T) {
	h := NewHasher(50)
	got, err := h.HashContext(context.Background(), "secretA1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if want := Hash("secretA1", 50); got != want {
		t.Fatalf("HashContext = %q, want %q", got, want)
	}
}

func TestHasherHonorsCancelledContext(t *testing.T) {
	h := NewHasher(50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.HashContext(ctx, "secretA1"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestHasherDefaultIterations(t *testing.T) {
	h := NewHasher(0)
	if h.Iterations() != DefaultIterations {
		t.Fatalf("iterations = %d, want %d", h.Iterations(), DefaultIterations)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, err := h.HashContext(ctx, "dup1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if want := Hash("dup1234", DefaultIterations); got != want {
		t.Fatalf("HashContext = %q, want %q", got, want)
	}
}
