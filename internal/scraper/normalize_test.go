package scraper

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `POD;OBIS;Time;Value;Status
HU000120-11-S00000000000000000001;1.8.0';2023.03.15 10:15:00;0.25;OK
HU000120-11-S00000000000000000001;1.8.0';2023.03.15 10:30:00;0.5;OK
HU000120-11-S00000000000000000002;2.8.0';2023.03.15 10:15:00;1.125;E
HU000120-11-S00000000000000000001;1.8.0';2023.03.15 10:00:00;0.75;OK
HU000120-11-S00000000000000000002;2.8.0';2023.03.15 10:15:00;1.125;E
`

func TestNormalizeGroupsByPointInFirstSeenOrder(t *testing.T) {
	series, err := Normalize(strings.NewReader(sampleExport), time.UTC)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "HU000120-11-S00000000000000000001 1.8.0", series[0].Name)
	assert.Equal(t, "kWh", series[0].Unit)
	assert.Equal(t, "HU000120-11-S00000000000000000002 2.8.0", series[1].Name)

	require.Len(t, series[0].Data, 3)
	require.Len(t, series[1].Data, 2)
	assert.Equal(t, 5, CountReadings(series))
}

func TestNormalizePreservesRowOrder(t *testing.T) {
	series, err := Normalize(strings.NewReader(sampleExport), time.UTC)
	require.NoError(t, err)

	first := series[0].Data
	// Not re-sorted: the 10:00 row came last in the input
	assert.Equal(t, time.Date(2023, 3, 15, 10, 15, 0, 0, time.UTC).UnixMilli(), first[0].Timestamp)
	assert.Equal(t, time.Date(2023, 3, 15, 10, 30, 0, 0, time.UTC).UnixMilli(), first[1].Timestamp)
	assert.Equal(t, time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC).UnixMilli(), first[2].Timestamp)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, []float64{first[0].Value, first[1].Value, first[2].Value})

	// Duplicate timestamps are kept
	second := series[1].Data
	assert.Equal(t, second[0], second[1])
	assert.Equal(t, "E", second[0].Status)
}

func TestNormalizeTimestampIsDeterministic(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	export := "h\nP;1.8.0;2023.03.15 10:30:00;1;OK\n"

	a, err := Normalize(strings.NewReader(export), loc)
	require.NoError(t, err)
	b, err := Normalize(strings.NewReader(export), loc)
	require.NoError(t, err)

	assert.Equal(t, a[0].Data[0].Timestamp, b[0].Data[0].Timestamp)
	assert.Equal(t, int64(1678872600000), a[0].Data[0].Timestamp)
}

func TestNormalizeJSONShape(t *testing.T) {
	export := "POD;OBIS;Time;Value;Status\nP1;1.8.0';2023.03.15 10:30:00;1.5;OK\n"

	data, err := NormalizeJSON(strings.NewReader(export), time.UTC)
	require.NoError(t, err)

	assert.JSONEq(t, `[{"name":"P1 1.8.0","unit":"kWh","data":[[1678876200000,1.5,"OK"]]}]`, string(data))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 1)
}

func TestNormalizeHeaderOnly(t *testing.T) {
	data, err := NormalizeJSON(strings.NewReader("POD;OBIS;Time;Value;Status\n"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = NormalizeJSON(strings.NewReader(""), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestNormalizeHandlesCRLF(t *testing.T) {
	export := "POD;OBIS;Time;Value;Status\r\nP1;1.8.0;2023.03.15 10:30:00;2;OK\r\n"
	series, err := Normalize(strings.NewReader(export), time.UTC)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "OK", series[0].Data[0].Status)
}

func TestNormalizeMalformedRows(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		fields int
		reason string
	}{
		{"too few fields", "P1;1.8.0;2023.03.15 10:30:00;2", 4, ""},
		{"too many fields", "P1;1.8.0;2023.03.15 10:30:00;2;OK;extra", 6, ""},
		{"bad timestamp", "P1;1.8.0;2023-03-15 10:30:00;2;OK", 5, "timestamp"},
		{"bad value", "P1;1.8.0;2023.03.15 10:30:00;2,5;OK", 5, "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			export := "POD;OBIS;Time;Value;Status\nP1;1.8.0;2023.03.15 10:15:00;1;OK\n" + tt.row + "\n"
			_, err := Normalize(strings.NewReader(export), time.UTC)

			var malformed *MalformedReportError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, 3, malformed.Line)
			assert.Equal(t, tt.fields, malformed.Fields)
			assert.Contains(t, malformed.Reason, tt.reason)
		})
	}
}

func TestNormalizeBlankLineMidFile(t *testing.T) {
	export := "POD;OBIS;Time;Value;Status\n" +
		"P1;1.8.0;2023.03.15 10:15:00;1;OK\n" +
		"\n" +
		"P1;1.8.0;2023.03.15 10:30:00;2;OK\n"
	_, err := Normalize(strings.NewReader(export), time.UTC)

	var malformed *MalformedReportError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 3, malformed.Line)
	assert.Equal(t, "blank line", malformed.Reason)
}

func TestNormalizeToleratesTrailingBlankLines(t *testing.T) {
	export := "POD;OBIS;Time;Value;Status\r\nP1;1.8.0;2023.03.15 10:15:00;1;OK\r\n\r\n\n"
	series, err := Normalize(strings.NewReader(export), time.UTC)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Len(t, series[0].Data, 1)
}

func TestNormalizeKeepsQuotesVerbatim(t *testing.T) {
	export := "POD;OBIS;Time;Value;Status\n\"P1\";1.8.0';2023.03.15 10:15:00;1;\"OK\"\n"
	series, err := Normalize(strings.NewReader(export), time.UTC)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, `"P1" 1.8.0`, series[0].Name)
	assert.Equal(t, `"OK"`, series[0].Data[0].Status)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "P1 1.8.0", DisplayName("P1", "1.8.0'"))
	assert.Equal(t, "P1 1.8.0", DisplayName("P1", "'1.8.'0'"))
	assert.Equal(t, "P1 2.8.0", DisplayName("P1", "2.8.0"))
}
