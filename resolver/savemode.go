// Package resolver decides how an edit to one occurrence of a recurring
// event propagates across the series, and applies property merges onto
// stored exception records.
package resolver

import "strings"

// SaveMode selects how an edit propagates across a recurring series. The
// zero value is SaveModeAll, which is also the fallback for malformed
// input.
type SaveMode int

const (
	// SaveModeAll replaces the master event wholesale.
	SaveModeAll SaveMode = iota
	// SaveModeNew detaches the edit into an independent non-recurring event.
	SaveModeNew
	// SaveModeCurrent stores the edit as a single-instance exception.
	SaveModeCurrent
	// SaveModeFuture splits the series at the edited instance.
	SaveModeFuture
)

// ParseSaveMode maps a caller-supplied mode string onto the enumeration.
// Unknown or empty values default to SaveModeAll.
func ParseSaveMode(s string) SaveMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return SaveModeNew
	case "current":
		return SaveModeCurrent
	case "future":
		return SaveModeFuture
	default:
		return SaveModeAll
	}
}

func (m SaveMode) String() string {
	switch m {
	case SaveModeNew:
		return "new"
	case SaveModeCurrent:
		return "current"
	case SaveModeFuture:
		return "future"
	default:
		return "all"
	}
}
