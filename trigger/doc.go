// Package trigger provides expcache.Trigger implementations.
//
//   - Signal: fired by hand (Fire). Proactive.
//   - Context: fires when a context.Context is done. Proactive.
//   - File: fires when a watched file changes (fsnotify). Proactive.
//   - Generation: expires when a genstore generation moves. Polled only.
//   - Composite: combines any of the above.
//
// Typical use inside a create func:
//
//	sig := trigger.NewSignal()
//	v, err := store.Set("cfg", nil, nil, func(c *expcache.Creation[Config]) (Config, error) {
//	    _ = c.AddTrigger(sig)
//	    return load()
//	})
//	...
//	sig.Fire() // entry is dropped right away, its eviction callbacks run
package trigger
