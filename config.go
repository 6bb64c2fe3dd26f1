package logkv

import "go.uber.org/zap"

const (
	// DefaultDirtyThreshold is the maximum number of distinct keys the
	// memtable may hold before it is flushed to a new segment. Flush
	// triggers once the memtable size is strictly greater than this value.
	DefaultDirtyThreshold = 1024

	// DefaultMergeThreshold is the maximum number of segments the segment
	// list may hold before the two oldest are compacted.
	DefaultMergeThreshold = 10
)

// Config contains database settings which are updated with ConfigOption functions.
type Config struct {
	dirtyThreshold int
	mergeThreshold int
	logger         *zap.SugaredLogger
}

// ConfigOption helps to change default database settings.
type ConfigOption func(*Config)

// WithDirtyThreshold sets the maximum number of distinct keys the memtable
// may hold before it is flushed to a sorted segment.
func WithDirtyThreshold(threshold int) ConfigOption {
	return func(c *Config) {
		c.dirtyThreshold = threshold
	}
}

// WithMergeThreshold sets the maximum number of segments the segment list
// may hold before the two oldest segments are compacted.
func WithMergeThreshold(threshold int) ConfigOption {
	return func(c *Config) {
		c.mergeThreshold = threshold
	}
}

// WithLogger sets the logger used to report the engine's lifecycle events
// (recovery, flush, merge). The default is a no-op logger.
func WithLogger(log *zap.SugaredLogger) ConfigOption {
	return func(c *Config) {
		c.logger = log
	}
}
