// Package sampling picks a time-spread subset of a library's releases.
package sampling

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/shared/observability"
)

// DefaultCount is the sample size used when none is configured.
const DefaultCount = 20

// ReleaseLister returns the full release history of a library.
type ReleaseLister interface {
	Releases(ctx context.Context, name string) ([]domain.Release, error)
}

// Selector samples releases fetched from a registry.
type Selector struct {
	registry ReleaseLister
}

func NewSelector(registry ReleaseLister) *Selector {
	return &Selector{registry: registry}
}

// Select fetches the release history of name and samples it. Registry errors
// are returned unchanged so their codes reach the caller.
func (s *Selector) Select(ctx context.Context, name string, count int, window domain.TimeRange) ([]domain.Release, error) {
	releases, err := s.registry.Releases(ctx, name)
	if err != nil {
		return nil, domainErrors.AddContext(err, domainErrors.CtxLibrary, name)
	}
	picked, err := Sample(releases, count, window)
	if err != nil {
		return nil, domainErrors.AddContext(err, domainErrors.CtxLibrary, name)
	}
	observability.VersionsSelected.Set(float64(len(picked)))
	slog.Info("versions selected", "library", name, "available", len(releases), "selected", len(picked))
	return picked, nil
}

// Sample drops withdrawn releases and releases outside window, then returns
// at most count releases spread evenly over the remaining time span. The
// result is strictly ascending by timestamp.
//
// With more than count candidates the span is split into count-1 equal
// intervals and the release closest to each boundary is taken, the earlier
// one on ties. Repeated picks collapse, so fewer than count releases may be
// returned. A count of 1 picks the latest release.
func Sample(releases []domain.Release, count int, window domain.TimeRange) ([]domain.Release, error) {
	if count < 1 {
		count = DefaultCount
	}
	if len(releases) == 0 {
		return nil, domainErrors.New(domainErrors.CodeNoPublishedVersions, "library has no published versions")
	}

	candidates := make([]domain.Release, 0, len(releases))
	for _, r := range releases {
		if r.Withdrawn || !window.Contains(r.PublishedAt) {
			continue
		}
		candidates = append(candidates, r)
	}
	candidates = dedupeTimestamps(candidates)
	if len(candidates) == 0 {
		return nil, domainErrors.New(domainErrors.CodeNoPublishedVersions, "no published versions left after filtering")
	}

	if len(candidates) <= count {
		return candidates, nil
	}
	if count == 1 {
		return []domain.Release{candidates[len(candidates)-1]}, nil
	}

	first := candidates[0].PublishedAt
	last := candidates[len(candidates)-1].PublishedAt
	span := last.Sub(first)

	picked := make([]domain.Release, 0, count)
	prev := -1
	for i := 0; i < count; i++ {
		var boundary time.Time
		switch i {
		case 0:
			boundary = first
		case count - 1:
			boundary = last
		default:
			boundary = first.Add(time.Duration(float64(span) * float64(i) / float64(count-1)))
		}
		idx := closest(candidates, boundary)
		if idx == prev {
			continue
		}
		picked = append(picked, candidates[idx])
		prev = idx
	}
	return picked, nil
}

// dedupeTimestamps sorts by timestamp and keeps, for identical timestamps,
// the first release in input order.
func dedupeTimestamps(releases []domain.Release) []domain.Release {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].PublishedAt.Before(releases[j].PublishedAt)
	})
	out := releases[:0]
	for i, r := range releases {
		if i > 0 && r.PublishedAt.Equal(out[len(out)-1].PublishedAt) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// closest returns the index of the release nearest to t in a sorted slice,
// preferring the earlier release on ties.
func closest(sorted []domain.Release, t time.Time) int {
	i := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].PublishedAt.Before(t)
	})
	if i == 0 {
		return 0
	}
	if i == len(sorted) {
		return len(sorted) - 1
	}
	before := t.Sub(sorted[i-1].PublishedAt)
	after := sorted[i].PublishedAt.Sub(t)
	if before <= after {
		return i - 1
	}
	return i
}
