// Package output renders library reports as CSV tables and reads them back.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/metrics"
	"modernity/internal/shared/util"
)

// Unavailable is the cell written for a metric that could not be computed.
const Unavailable = "NA"

const (
	versionHeader   = "version"
	timestampHeader = "timestamp"
)

type CSVGenerator struct {
	report *domain.LibraryReport
}

func NewCSVGenerator(report *domain.LibraryReport) *CSVGenerator {
	return &CSVGenerator{report: report}
}

// Generate renders the table. Rows must already be in strictly ascending
// timestamp order and carry exactly the report's columns.
func (g *CSVGenerator) Generate() ([]byte, error) {
	if err := validate(g.report); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{versionHeader, timestampHeader}, g.report.Columns...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range g.report.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Version.Version, FormatTimestamp(row.Version.PublishedAt))
		for _, m := range row.Metrics {
			record = append(record, FormatValue(m))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validate(report *domain.LibraryReport) error {
	if report == nil {
		return domainErrors.New(domainErrors.CodeValidationError, "nil report")
	}
	if err := checkLibraryName(report.Library); err != nil {
		return err
	}
	for i, row := range report.Rows {
		if i > 0 && !row.Version.PublishedAt.After(report.Rows[i-1].Version.PublishedAt) {
			return domainErrors.Newf(domainErrors.CodeValidationError,
				"row %d (%s) is not after row %d (%s)", i, row.Version.Version, i-1, report.Rows[i-1].Version.Version)
		}
		names := row.Metrics.Names()
		if len(names) != len(report.Columns) {
			return domainErrors.Newf(domainErrors.CodeValidationError,
				"row %s has %d metrics, want %d", row.Version.Version, len(names), len(report.Columns))
		}
		for j, name := range names {
			if name != report.Columns[j] {
				return domainErrors.Newf(domainErrors.CodeValidationError,
					"row %s column %d is %s, want %s", row.Version.Version, j, name, report.Columns[j])
			}
		}
	}
	return nil
}

func checkLibraryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return domainErrors.Newf(domainErrors.CodeValidationError, "invalid library name %q", name)
	}
	return nil
}

// FormatTimestamp renders t as RFC 3339 in UTC, keeping sub-second
// precision when present.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatValue renders counts as integers and ratios and levels with the
// shortest representation that parses back to the same float64.
func FormatValue(m domain.MetricValue) string {
	if !m.Available {
		return Unavailable
	}
	if m.Kind == domain.KindCount {
		return strconv.FormatInt(int64(m.Value), 10)
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

// ReportPath is where the table of library lives under dir.
func ReportPath(dir, library string) string {
	return filepath.Join(dir, library+".csv")
}

// WriteReport replaces <dir>/<library>.csv atomically and returns its path.
func WriteReport(dir string, report *domain.LibraryReport) (string, error) {
	data, err := NewCSVGenerator(report).Generate()
	if err != nil {
		return "", err
	}
	path := ReportPath(dir, report.Library)
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %q: %w", path, err)
	}
	return path, nil
}

// ReadReport loads a table written by WriteReport. The library name is
// taken from the file name.
func ReadReport(path string) (*domain.LibraryReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	report, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read report %q: %w", path, err)
	}
	report.Library = strings.TrimSuffix(filepath.Base(path), ".csv")
	return report, nil
}

// Decode parses CSV report content. Column kinds come from the metric
// schema; unknown columns are read as levels.
func Decode(r io.Reader) (*domain.LibraryReport, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domainErrors.New(domainErrors.CodeValidationError, "empty report")
	}
	header := records[0]
	if len(header) < 2 || header[0] != versionHeader || header[1] != timestampHeader {
		return nil, domainErrors.Newf(domainErrors.CodeValidationError, "unexpected header %v", header)
	}

	report := &domain.LibraryReport{Columns: append([]string(nil), header[2:]...)}
	for line, record := range records[1:] {
		published, err := time.Parse(time.RFC3339Nano, record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line+1, err)
		}
		row := domain.ReportRow{
			Version: domain.LibraryVersion{Version: record[0], PublishedAt: published},
			Metrics: make(domain.MetricVector, 0, len(report.Columns)),
		}
		for i, name := range report.Columns {
			m, err := parseValue(name, record[i+2])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", line+1, name, err)
			}
			row.Metrics = append(row.Metrics, m)
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

func parseValue(name, cell string) (domain.MetricValue, error) {
	kind, ok := metrics.KindOf(name)
	if !ok {
		kind = domain.KindLevel
	}
	m := domain.MetricValue{Name: name, Kind: kind}
	if cell == Unavailable {
		return m, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return m, err
	}
	m.Value = v
	m.Available = true
	return m, nil
}
