package recurrence

import "time"

// ExpansionOptions controls the hard limits applied during expansion.
// They guarantee termination even for unbounded or pathological rules.
type ExpansionOptions struct {
	// MaxOccurrences caps the number of generated candidates per call.
	MaxOccurrences int
	// MaxYears caps unbounded rules at this many years past the current
	// date.
	MaxYears int
}

// DefaultExpansionOptions are the limits applied by NewEngine.
var DefaultExpansionOptions = ExpansionOptions{
	MaxOccurrences: 999,
	MaxYears:       20,
}

// CacheConfig holds configuration for the expansion cache.
type CacheConfig struct {
	TTL             time.Duration // how long entries stay valid
	MaxEntries      int           // maximum number of entries before cleanup
	CleanupInterval time.Duration // how often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for expansion caching.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}
