// Package domain holds the data model shared by the pipeline stages.
package domain

import (
	"time"
)

// Release is one entry of a library's published history as reported by the
// registry.
type Release struct {
	Version     string
	PublishedAt time.Time
	Withdrawn   bool   // yanked on crates.io
	ArchiveURL  string // http(s) URL, file:// URL or local path
}

// LibraryVersion identifies one analyzed version. SourceRoot is empty until
// the version has been fetched.
type LibraryVersion struct {
	Name        string
	Version     string
	PublishedAt time.Time
	SourceRoot  string
}

// TimeRange bounds the releases considered by the selector. Zero values mean
// unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

type MetricKind int

const (
	KindCount MetricKind = iota // non-negative integer
	KindRatio                   // value in [0,1]
	KindLevel                   // non-negative real
)

func (k MetricKind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindRatio:
		return "ratio"
	case KindLevel:
		return "level"
	}
	return "unknown"
}

// MetricValue is one cell of a MetricVector. Available is false for the
// "unavailable" sentinel, in which case Value is meaningless.
type MetricValue struct {
	Name      string
	Kind      MetricKind
	Value     float64
	Available bool
}

// MetricVector is the ordered metric set of a single version.
type MetricVector []MetricValue

// Names returns the ordered metric names.
func (v MetricVector) Names() []string {
	names := make([]string, len(v))
	for i, m := range v {
		names[i] = m.Name
	}
	return names
}

// Get returns the value with the given name.
func (v MetricVector) Get(name string) (MetricValue, bool) {
	for _, m := range v {
		if m.Name == name {
			return m, true
		}
	}
	return MetricValue{}, false
}

// ReportRow pairs an analyzed version with its metrics.
type ReportRow struct {
	Version LibraryVersion
	Metrics MetricVector
}

// LibraryReport is the terminal artifact of a run: rows strictly ascending by
// release timestamp.
type LibraryReport struct {
	Library string
	Columns []string // ordered metric names
	Rows    []ReportRow
}

// VersionOutcome is the result of processing one selected release. Err is set
// when the version was dropped.
type VersionOutcome struct {
	Release Release
	Row     *ReportRow
	Err     error
}
