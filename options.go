package alohacast

const (
	defaultMaxSize  = 1024
	defaultGOPCount = 2
)

// config collects construction-time settings for a Buffer.
type config struct {
	size           int
	maxSize        int
	gopCount       int
	startThreshold int
	readerChanged  func(loop Loop, count int, added bool)
}

func defaultConfig() config {
	return config{
		maxSize:  defaultMaxSize,
		gopCount: defaultGOPCount,
	}
}

// An Option customizes a Buffer at construction.
type Option func(*config)

// WithSize fixes the history capacity, disabling adaptive sizing. A value
// of zero or less keeps adaptive sizing enabled.
func WithSize(n int) Option {
	return func(c *config) { c.size = n }
}

// WithMaxSize caps the capacity adaptive sizing may choose, and sets the
// initial capacity while the keyframe interval is still unknown. The
// default is 1024 frames.
func WithMaxSize(n int) Option {
	return func(c *config) { c.maxSize = n }
}

// WithGOPCount sets how many groups of pictures the adaptive history aims
// to retain. The default of two keeps at least one complete group cached
// for late joiners.
func WithGOPCount(n int) Option {
	return func(c *config) { c.gopCount = n }
}

// WithStartThreshold sets how many frames a cache-enabled reader may
// withhold while waiting for a keyframe before delivery is forced. The
// default of zero means the history's current capacity.
func WithStartThreshold(n int) Option {
	return func(c *config) { c.startThreshold = n }
}

// WithReaderChanged registers an observer fired on the affected loop after
// every attach and every settled detach, with that loop's updated reader
// count. Producers typically use it to start upstream work when the first
// reader arrives and stop when the last one leaves.
func WithReaderChanged(fn func(loop Loop, count int, added bool)) Option {
	return func(c *config) { c.readerChanged = fn }
}
