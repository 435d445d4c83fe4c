package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/merchload/internal/engine"
)

// ReportFormat is a machine-readable summary encoding.
type ReportFormat string

const (
	FormatJSON  ReportFormat = "json"
	FormatYAML  ReportFormat = "yaml"
	FormatJUnit ReportFormat = "junit"
)

// FormatForPath picks a report format from a file extension. Unknown
// extensions fall back to JSON.
func FormatForPath(path string) ReportFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".xml":
		return FormatJUnit
	default:
		return FormatJSON
	}
}

// WriteReportFile writes the summary to path in the format implied by its
// extension.
func WriteReportFile(path string, s *engine.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteReport(f, FormatForPath(path), s); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}

// WriteReport encodes the summary to w.
func WriteReport(w io.Writer, format ReportFormat, s *engine.Summary) error {
	if s == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	switch format {
	case FormatJSON:
		return WriteJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	case FormatJUnit:
		return writeJUnit(w, s)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s *engine.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// writeYAML goes through JSON so both encodings share the same keys.
func writeYAML(w io.Writer, s *engine.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return enc.Close()
}

// JUnitTestSuites is the root element of a JUnit report.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite groups the threshold outcomes of one run.
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase is one threshold expression.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure describes a breached threshold.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// writeJUnit maps each threshold to a test case so CI systems can show
// which SLO broke.
func writeJUnit(w io.Writer, s *engine.Summary) error {
	suite := JUnitTestSuite{
		Name:      s.Name,
		Time:      s.Duration.Seconds(),
		Timestamp: s.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if s.SetupError != "" {
		suite.Errors = 1
		suite.SystemErr = s.SetupError
	}
	for _, r := range s.Thresholds.Results {
		tc := JUnitTestCase{
			Name:      r.Series + ": " + r.Expression,
			Classname: "merchload." + r.Series,
		}
		if !r.Passed {
			content := fmt.Sprintf("actual value %g", r.Actual)
			if r.Message != "" {
				content += "\n" + r.Message
			}
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("threshold %q breached", r.Expression),
				Type:    "ThresholdFailure",
				Content: content,
			}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(suite.TestCases)

	out, err := xml.MarshalIndent(JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode junit report: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header+string(out)+"\n"); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}
