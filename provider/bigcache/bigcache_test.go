package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Minute, MaxEntriesInWindow: 100, MaxEntrySize: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	if _, ok, err := p.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = %v,%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Second); err != nil || !ok {
		t.Fatalf("Set = %v,%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = %q,%v,%v", got, ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del(missing) = %v", err)
	}
}
