// Package expcache implements an in-process, key-addressed cache with
// expiration and eviction callbacks.
//
// Entries expire by any combination of:
//   - an absolute deadline (Creation.SetAbsoluteExpiration / SetExpiresAfter),
//   - a sliding window refreshed on every successful TryGet,
//   - Triggers: external change signals. Proactive triggers (trigger.Signal,
//     trigger.File, trigger.Context) remove the entry as soon as they fire;
//     polled ones (trigger.Generation) are checked on access and by sweeps.
//
// Values are produced by a CreateFunc that configures the entry through a
// Creation before it is inserted:
//
//	v, err := store.Set("user:42", nil, nil, func(c *expcache.Creation[User]) (User, error) {
//	    _ = c.SetSlidingExpiration(5 * time.Minute)
//	    _ = c.OnEviction(func(key string, u User, r expcache.EvictionReason, _ any) {
//	        log.Printf("%s evicted: %s", key, r)
//	    }, nil)
//	    return loadUser(42)
//	})
//
// Links:
//
// A Link passed to Set or TryGet collects the triggers and earliest absolute
// deadline of every entry touched while building a composite value. Inherit
// copies them into the composite so it expires no later than its parts.
//
// Eviction:
//
// Post-eviction callbacks run exactly once per entry, on a background
// goroutine, whatever the reason. There is no timer: expired entries are
// swept by a scan started opportunistically from store calls at most once per
// Options.ExpirationScanFrequency. Compact removes expired entries first, then
// Low, Normal and High priority entries in least-recently-used order;
// PriorityNeverRemove entries are only removed explicitly or on expiry.
// Memory pressure (package pressure) triggers Compact(0.10) by default.
package expcache
