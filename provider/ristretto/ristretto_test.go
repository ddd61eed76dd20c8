package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "spill:ns:k", []byte("v"), 0, 0); err != nil || !ok {
		t.Fatalf("Set = %v,%v", ok, err)
	}
	p.Wait()

	got, ok, err := p.Get(ctx, "spill:ns:k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = %q,%v,%v", got, ok, err)
	}
	if err := p.Del(ctx, "spill:ns:k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "spill:ns:k"); ok {
		t.Fatalf("hit after Del")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
