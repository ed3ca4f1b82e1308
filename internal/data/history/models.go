package history

import (
	"time"
)

// SchemaVersion is the newest migration this build understands.
const SchemaVersion = 2

// Run is one successful analysis of a library.
type Run struct {
	ID           string
	Library      string
	StartedAt    time.Time
	FinishedAt   time.Time
	MetricSchema int
	Requested    int // versions selected
	Analyzed     int // rows written
	Dropped      int
	ResultsPath  string
}
