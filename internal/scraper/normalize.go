package scraper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/meterfeed/pkg/models"
)

// TimestampLayout is the export's timestamp format. It carries no zone.
const TimestampLayout = "2006.01.02 15:04:05"

const (
	exportFields  = 5
	maxExportLine = 1024 * 1024
)

// Normalize groups an export into one series per metering point. Points
// keep the order they first appear in; readings keep row order.
//
// Rows are split on every semicolon and fields are taken verbatim, so
// quote characters are data. Blank lines are malformed unless only blank
// lines follow them.
func Normalize(r io.Reader, loc *time.Location) ([]models.Series, error) {
	if loc == nil {
		loc = time.Local
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxExportLine)

	// Header
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading CSV header: %w", err)
		}
		return []models.Series{}, nil
	}

	series := []models.Series{}
	index := make(map[string]int)
	line, blank := 1, 0

	for scanner.Scan() {
		line++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			if blank == 0 {
				blank = line
			}
			continue
		}
		if blank != 0 {
			return nil, &MalformedReportError{Line: blank, Reason: "blank line"}
		}

		record := strings.Split(text, ";")
		if len(record) != exportFields {
			return nil, &MalformedReportError{Line: line, Fields: len(record)}
		}

		pointID, obis, status := record[0], record[1], record[4]
		tsStr := strings.TrimSpace(record[2])
		valueStr := strings.TrimSpace(record[3])

		ts, err := time.ParseInLocation(TimestampLayout, tsStr, loc)
		if err != nil {
			return nil, &MalformedReportError{Line: line, Fields: len(record), Reason: fmt.Sprintf("timestamp %q: %v", tsStr, err)}
		}

		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, &MalformedReportError{Line: line, Fields: len(record), Reason: fmt.Sprintf("value %q: %v", valueStr, err)}
		}

		i, ok := index[pointID]
		if !ok {
			i = len(series)
			index[pointID] = i
			series = append(series, models.Series{
				Name: DisplayName(pointID, obis),
				Unit: models.UnitKWh,
				Data: []models.Reading{},
			})
		}

		series[i].Data = append(series[i].Data, models.Reading{
			Timestamp: ts.UnixMilli(),
			Value:     value,
			Status:    status,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading CSV row %d: %w", line+1, err)
	}

	return series, nil
}

// NormalizeJSON normalizes an export and encodes it as the published JSON
func NormalizeJSON(r io.Reader, loc *time.Location) ([]byte, error) {
	series, err := Normalize(r, loc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(series)
	if err != nil {
		return nil, fmt.Errorf("encoding series: %w", err)
	}
	return data, nil
}

// DisplayName builds a series name from the point id and the OBIS code
// with single quotes removed.
func DisplayName(pointID, obis string) string {
	return pointID + " " + strings.ReplaceAll(obis, "'", "")
}

// CountReadings returns the total number of readings across series
func CountReadings(series []models.Series) int {
	n := 0
	for _, s := range series {
		n += len(s.Data)
	}
	return n
}
