package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/expcache"
)

func TestLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("spill set failed", expcache.Fields{"key": "k1", "err": errors.New("boom")})
	l.Debug("no fields", nil)

	if logs.Len() != 2 {
		t.Fatalf("entries = %d, want 2", logs.Len())
	}
	e := logs.All()[0]
	if e.LoggerName != "expcache" || e.Level != zapcore.WarnLevel {
		t.Fatalf("entry = %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["key"] != "k1" || ctx["err"] != "boom" {
		t.Fatalf("context = %v", ctx)
	}
}
