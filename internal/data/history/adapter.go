package history

import (
	"time"

	"modernity/internal/core/domain"
)

// Adapter bridges Store to the core RunHistory port.
type Adapter struct {
	store *Store
}

func NewAdapter(store *Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) SaveRun(run Run, report *domain.LibraryReport) error {
	return a.store.SaveRun(run, report)
}

func (a *Adapter) LoadRuns(library string, since time.Time) ([]Run, error) {
	return a.store.LoadRuns(library, since)
}

func (a *Adapter) Close() error {
	return a.store.Close()
}
