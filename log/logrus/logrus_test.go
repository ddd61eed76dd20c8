package logrus

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/expcache"
)

func TestLoggerForwardsFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("memory pressure; compacting", expcache.Fields{"fraction": 0.1})

	e := hook.LastEntry()
	if e == nil {
		t.Fatalf("no entry logged")
	}
	if e.Level != logrus.InfoLevel || e.Data["fraction"] != 0.1 || e.Data["component"] != "expcache" {
		t.Fatalf("entry = %v %v", e.Level, e.Data)
	}
}
