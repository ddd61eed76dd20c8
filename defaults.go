package expcache

import "time"

const (
	defaultScanFrequency        = time.Minute
	defaultPressureCompaction   = 0.10
	defaultCompactionPercentage = 0.05
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
