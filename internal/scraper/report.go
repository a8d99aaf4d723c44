package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	chartDataPath = "Reports/ChartData"
	exportPath    = "ExportReport/Export"
)

// ReportFormat tags the body of a RawReport
type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportCSV  ReportFormat = "csv"
)

// RawReport is a report body exactly as the portal returned it
type RawReport struct {
	Format ReportFormat
	Body   string
}

// Fetcher downloads a consumption report with an authenticated session
type Fetcher interface {
	Fetch(ctx context.Context, s *Session, reportID string, w DateWindow) (RawReport, error)
	Format() ReportFormat
}

// NewFetcher returns the fetcher for a format name ("json" or "csv")
func NewFetcher(format string) (Fetcher, error) {
	switch ReportFormat(format) {
	case ReportJSON:
		return &JSONFetcher{}, nil
	case ReportCSV:
		return &CSVFetcher{}, nil
	default:
		return nil, fmt.Errorf("unknown report format: %s (available: json, csv)", format)
	}
}

// JSONFetcher reads the chart data endpoint, which already returns the
// canonical series JSON.
type JSONFetcher struct {
	// Now supplies the cache-buster timestamp. Defaults to time.Now.
	Now func() time.Time
}

func (f *JSONFetcher) Format() ReportFormat { return ReportJSON }

func (f *JSONFetcher) Fetch(ctx context.Context, s *Session, reportID string, w DateWindow) (RawReport, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	params := url.Values{}
	params.Set("reportId", reportID)
	params.Set("since", w.SinceParam())
	params.Set("until", w.UntilParam())
	params.Set("_", strconv.FormatInt(now().UnixMilli(), 10))

	body, err := s.Get(ctx, chartDataPath, params)
	if err != nil {
		return RawReport{}, fmt.Errorf("fetching chart data: %w", err)
	}
	return RawReport{Format: ReportJSON, Body: body}, nil
}

// CSVFetcher posts to the export endpoint and returns the semicolon
// separated export with status columns.
type CSVFetcher struct{}

func (f *CSVFetcher) Format() ReportFormat { return ReportCSV }

func (f *CSVFetcher) Fetch(ctx context.Context, s *Session, reportID string, w DateWindow) (RawReport, error) {
	form := url.Values{}
	form.Set("reportId", reportID)
	form.Set("since", w.SinceParam())
	form.Set("until", w.UntilParam())
	form.Set("decimalSeparator", ".")
	form.Set("viewtype", "3")
	form.Set("exportformat", "3")
	form.Set("includestatus", "true")

	body, err := s.PostForm(ctx, exportPath, form)
	if err != nil {
		return RawReport{}, fmt.Errorf("exporting report: %w", err)
	}
	return RawReport{Format: ReportCSV, Body: body}, nil
}
