package storage

import (
	"context"
	"testing"
)

func TestMemoryObjectStoreRoundTrip(t *testing.T) {
	m := NewMemoryObjectStore()
	ctx := context.Background()

	if err := m.Put(ctx, "key-1", []byte("blob"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, err := m.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "blob" {
		t.Errorf("body = %q, want blob", body)
	}

	if _, err := m.Get(ctx, "missing"); err == nil {
		t.Error("expected error for missing key")
	}

	if err := m.Delete(ctx, "key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("store holds %d blobs after delete", m.Len())
	}
}
