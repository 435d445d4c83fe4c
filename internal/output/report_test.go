package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want ReportFormat
	}{
		{"summary.json", FormatJSON},
		{"summary.YAML", FormatYAML},
		{"out/summary.yml", FormatYAML},
		{"junit.xml", FormatJUnit},
		{"summary", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForPath(tt.path))
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleSummary()))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "merch shop load", doc["name"])
	assert.Equal(t, false, doc["passed"])

	m := doc["metrics"].(map[string]interface{})
	trends := m["trends"].(map[string]interface{})
	assert.Contains(t, trends, "http_req_duration")
}

func TestWriteYAMLUsesJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, FormatYAML, sampleSummary()))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "merch shop load", doc["name"])
	assert.Contains(t, doc, "thresholds")
}

func TestWriteJUnit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, FormatJUnit, sampleSummary()))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))
	require.Len(t, suites.TestSuites, 1)

	suite := suites.TestSuites[0]
	assert.Equal(t, 2, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Nil(t, suite.TestCases[0].Failure)
	require.NotNil(t, suite.TestCases[1].Failure)
	assert.Equal(t, "ThresholdFailure", suite.TestCases[1].Failure.Type)
}

func TestWriteReportNil(t *testing.T) {
	assert.Error(t, WriteReport(&bytes.Buffer{}, FormatJSON, nil))
	assert.Error(t, WriteReport(&bytes.Buffer{}, ReportFormat("html"), sampleSummary()))
}

func TestWriteReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, WriteReportFile(path, sampleSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}
