package sampling

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
)

var epoch = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return epoch.AddDate(0, 0, n)
}

func history(days ...int) []domain.Release {
	out := make([]domain.Release, len(days))
	for i, d := range days {
		out[i] = domain.Release{Version: fmt.Sprintf("0.%d.0", i), PublishedAt: day(d)}
	}
	return out
}

func assertAscending(t *testing.T, releases []domain.Release) {
	t.Helper()
	for i := 1; i < len(releases); i++ {
		require.True(t, releases[i-1].PublishedAt.Before(releases[i].PublishedAt),
			"not strictly ascending at %d: %v >= %v", i, releases[i-1].PublishedAt, releases[i].PublishedAt)
	}
}

func TestSample_AllWhenAtMostCount(t *testing.T) {
	releases := history(30, 10, 20)
	got, err := Sample(releases, 3, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assertAscending(t, got)
	assert.Equal(t, day(10), got[0].PublishedAt)
}

func TestSample_BoundsAndEvenness(t *testing.T) {
	// One release per day for 100 days.
	days := make([]int, 101)
	for i := range days {
		days[i] = i
	}
	got, err := Sample(history(days...), 5, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assertAscending(t, got)

	want := []time.Time{day(0), day(25), day(50), day(75), day(100)}
	for i, r := range got {
		assert.Equal(t, want[i], r.PublishedAt, "pick %d", i)
	}
}

func TestSample_NeverMoreThanCount(t *testing.T) {
	for count := 1; count <= 12; count++ {
		days := []int{0, 1, 2, 3, 50, 51, 52, 400, 401, 700, 701, 702, 703, 990, 1000}
		got, err := Sample(history(days...), count, domain.TimeRange{})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), count)
		assert.NotEmpty(t, got)
		assertAscending(t, got)
	}
}

func TestSample_ClusteredReleasesDeduplicate(t *testing.T) {
	// Two far-apart clusters: several boundaries map to the same release.
	got, err := Sample(history(0, 1, 2, 1000), 4, domain.TimeRange{})
	require.NoError(t, err)
	assertAscending(t, got)
	assert.Equal(t, day(0), got[0].PublishedAt)
	assert.Equal(t, day(1000), got[len(got)-1].PublishedAt)
	assert.Less(t, len(got), 4)
}

func TestSample_TieGoesToEarlier(t *testing.T) {
	// Boundaries at 0, 5 and 10; day 5 is equidistant from 4 and 6.
	got, err := Sample(history(0, 4, 6, 10), 3, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day(4), got[1].PublishedAt)
}

func TestSample_CountOnePicksLatest(t *testing.T) {
	got, err := Sample(history(0, 5, 9), 1, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(9), got[0].PublishedAt)
}

func TestSample_DropsWithdrawnAndOutOfRange(t *testing.T) {
	releases := history(0, 10, 20, 30, 40)
	releases[2].Withdrawn = true

	got, err := Sample(releases, 10, domain.TimeRange{Start: day(5), End: day(35)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(10), got[0].PublishedAt)
	assert.Equal(t, day(30), got[1].PublishedAt)
}

func TestSample_IdenticalTimestamps(t *testing.T) {
	releases := []domain.Release{
		{Version: "1.0.1", PublishedAt: day(3)},
		{Version: "1.0.0", PublishedAt: day(3)},
		{Version: "0.9.0", PublishedAt: day(1)},
	}
	got, err := Sample(releases, 5, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0.9.0", got[0].Version)
	assert.Equal(t, "1.0.1", got[1].Version)
}

func TestSample_Errors(t *testing.T) {
	_, err := Sample(nil, 5, domain.TimeRange{})
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeNoPublishedVersions))

	withdrawn := history(1, 2)
	withdrawn[0].Withdrawn = true
	withdrawn[1].Withdrawn = true
	_, err = Sample(withdrawn, 5, domain.TimeRange{})
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeNoPublishedVersions))

	_, err = Sample(history(1, 2), 5, domain.TimeRange{Start: day(100)})
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeNoPublishedVersions))
}

type fakeRegistry struct {
	releases []domain.Release
	err      error
}

func (f fakeRegistry) Releases(ctx context.Context, name string) ([]domain.Release, error) {
	return f.releases, f.err
}

func TestSelector_Select(t *testing.T) {
	s := NewSelector(fakeRegistry{releases: history(0, 1, 2, 3)})
	got, err := s.Select(context.Background(), "demo", 2, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(0), got[0].PublishedAt)
	assert.Equal(t, day(3), got[1].PublishedAt)

	s = NewSelector(fakeRegistry{err: domainErrors.New(domainErrors.CodeLibraryNotFound, "nope")})
	_, err = s.Select(context.Background(), "missing", 2, domain.TimeRange{})
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeLibraryNotFound))
}
