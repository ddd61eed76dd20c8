// Package sloghooks implements expcache.Hooks on top of log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/expcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery uint64
	ScannedEvery uint64
	// Log Removed and Replaced evictions too. Off by default: they are caller driven.
	LogExplicit bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr atomic.Uint64
	scannedCtr atomic.Uint64
}

var _ expcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Evicted(key string, reason expcache.EvictionReason) {
	if h.l == nil {
		return
	}
	if !h.opts.LogExplicit && (reason == expcache.EvictionRemoved || reason == expcache.EvictionReplaced) {
		return
	}
	if !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("expcache.evicted",
		"key", h.redact(key),
		"reason", reason.String())
}

func (h *Hooks) Compacted(requested, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("expcache.compacted",
		"requested", requested,
		"removed", removed)
}

func (h *Hooks) Scanned(inspected, removed int) {
	if h.l == nil || removed == 0 || !sample(h.opts.ScannedEvery, &h.scannedCtr) {
		return
	}
	h.l.Debug("expcache.scanned",
		"inspected", inspected,
		"removed", removed)
}

func (h *Hooks) CallbackPanic(key string, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("expcache.callback_panic",
		"key", h.redact(key),
		"panic", recovered)
}

func (h *Hooks) MemoryPressure(heapBytes uint64) {
	if h.l == nil {
		return
	}
	h.l.Warn("expcache.memory_pressure",
		"heap_bytes", heapBytes)
}
