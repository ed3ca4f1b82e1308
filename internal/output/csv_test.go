package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/metrics"
)

func sampleVector(seed float64, available bool) domain.MetricVector {
	var v domain.MetricVector
	for i, col := range metrics.Schema() {
		m := domain.MetricValue{Name: col.Name, Kind: col.Kind, Available: true}
		switch col.Kind {
		case domain.KindCount:
			m.Value = float64(i) + seed
		case domain.KindRatio:
			m.Value = 0.1 + seed/100
		case domain.KindLevel:
			m.Value = 36.666666666666664 + seed
		}
		if !available && col.Name == metrics.ReportedMSRV {
			m = domain.MetricValue{Name: col.Name, Kind: col.Kind}
		}
		v = append(v, m)
	}
	return v
}

func sampleReport() *domain.LibraryReport {
	base := time.Date(2020, 1, 2, 3, 4, 5, 123456000, time.UTC)
	return &domain.LibraryReport{
		Library: "serde",
		Columns: metrics.Columns(),
		Rows: []domain.ReportRow{
			{Version: domain.LibraryVersion{Name: "serde", Version: "1.0.0", PublishedAt: base}, Metrics: sampleVector(0, false)},
			{Version: domain.LibraryVersion{Name: "serde", Version: "1.0.1", PublishedAt: base.Add(48 * time.Hour)}, Metrics: sampleVector(1, true)},
			{Version: domain.LibraryVersion{Name: "serde", Version: "1.1.0", PublishedAt: base.Add(96 * time.Hour)}, Metrics: sampleVector(2, true)},
		},
	}
}

func TestGenerate_Format(t *testing.T) {
	data, err := NewCSVGenerator(sampleReport()).Generate()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "version,timestamp,"+strings.Join(metrics.Columns(), ","), lines[0])

	first := strings.Split(lines[1], ",")
	assert.Equal(t, "1.0.0", first[0])
	assert.Equal(t, "2020-01-02T03:04:05.123456Z", first[1])
	assert.Equal(t, "0", first[2], "edition is an integer")
	assert.Equal(t, Unavailable, first[3], "reported_msrv is unavailable")
	assert.Equal(t, "36.666666666666664", first[4])
}

func TestWriteReport_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	path, err := WriteReport(dir, report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "serde.csv"), path)

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, report.Library, got.Library)
	assert.Equal(t, report.Columns, got.Columns)
	require.Len(t, got.Rows, len(report.Rows))
	for i, row := range report.Rows {
		assert.Equal(t, row.Version.Version, got.Rows[i].Version.Version)
		assert.True(t, row.Version.PublishedAt.Equal(got.Rows[i].Version.PublishedAt))
		assert.Equal(t, row.Metrics, got.Rows[i].Metrics)
	}
}

func TestWriteReport_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()
	_, err := WriteReport(dir, report)
	require.NoError(t, err)

	report.Rows = report.Rows[:1]
	path, err := WriteReport(dir, report)
	require.NoError(t, err)

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestGenerate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.LibraryReport)
	}{
		{"unsorted rows", func(r *domain.LibraryReport) { r.Rows[0], r.Rows[1] = r.Rows[1], r.Rows[0] }},
		{"duplicate timestamp", func(r *domain.LibraryReport) { r.Rows[1].Version.PublishedAt = r.Rows[0].Version.PublishedAt }},
		{"missing metric", func(r *domain.LibraryReport) { r.Rows[2].Metrics = r.Rows[2].Metrics[:5] }},
		{"column mismatch", func(r *domain.LibraryReport) { r.Rows[1].Metrics[0].Name = "other" }},
		{"path in library", func(r *domain.LibraryReport) { r.Library = "../evil" }},
		{"empty library", func(r *domain.LibraryReport) { r.Library = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := sampleReport()
			tt.mutate(report)
			_, err := NewCSVGenerator(report).Generate()
			require.Error(t, err)
			assert.True(t, domainErrors.IsCode(err, domainErrors.CodeValidationError))
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad header", "name,when\n"},
		{"bad timestamp", "version,timestamp,edition\n1.0.0,yesterday,1\n"},
		{"bad number", "version,timestamp,edition\n1.0.0,2020-01-01T00:00:00Z,one\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		m    domain.MetricValue
		want string
	}{
		{domain.MetricValue{Kind: domain.KindCount, Value: 42, Available: true}, "42"},
		{domain.MetricValue{Kind: domain.KindRatio, Value: 0.25, Available: true}, "0.25"},
		{domain.MetricValue{Kind: domain.KindRatio, Value: 1, Available: true}, "1"},
		{domain.MetricValue{Kind: domain.KindLevel, Value: 1.0 / 3, Available: true}, "0.3333333333333333"},
		{domain.MetricValue{Kind: domain.KindRatio}, "NA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.m))
	}
}
