// Package charm adapts a charmbracelet/log logger to expcache.Logger. Handy
// for CLIs and local runs where human-readable output beats JSON.
package charm

import (
	"github.com/charmbracelet/log"

	"github.com/unkn0wn-root/expcache"
)

var _ expcache.Logger = Logger{}

type Logger struct{ L *log.Logger }

func (c Logger) Debug(msg string, f expcache.Fields) { c.L.Debug(msg, keyvals(f)...) }
func (c Logger) Info(msg string, f expcache.Fields)  { c.L.Info(msg, keyvals(f)...) }
func (c Logger) Warn(msg string, f expcache.Fields)  { c.L.Warn(msg, keyvals(f)...) }
func (c Logger) Error(msg string, f expcache.Fields) { c.L.Error(msg, keyvals(f)...) }

func keyvals(f expcache.Fields) []any {
	if len(f) == 0 {
		return nil
	}
	out := make([]any, 0, 2*len(f))
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
