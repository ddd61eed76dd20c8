package util

import (
	"strings"
	"testing"
)

func TestStorageKeyShortKeysVerbatim(t *testing.T) {
	if got := StorageKey("spill", "user", "u:1"); got != "spill:user:u:1" {
		t.Fatalf("got %q", got)
	}
}

func TestStorageKeyHashesLongKeys(t *testing.T) {
	long := strings.Repeat("k", maxPlainKey+1)
	a := StorageKey("spill", "ns", long)
	b := StorageKey("spill", "ns", long)
	if a != b {
		t.Fatalf("hash not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "spill:ns:h:") || len(a) > 64 {
		t.Fatalf("unexpected hashed key %q", a)
	}
	if a == StorageKey("spill", "ns", long+"x") {
		t.Fatalf("distinct keys collided")
	}
}
