package models

import (
	"fmt"
	"strings"
)

// ReportFormat selects how collected events are presented to recipients.
type ReportFormat string

const (
	FormatJSON ReportFormat = "JSON"
	FormatHTML ReportFormat = "HTML"
	FormatXML  ReportFormat = "XML"
)

// ParseReportFormat accepts JSON, HTML or XML in any letter case.
func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToUpper(strings.TrimSpace(s))); f {
	case FormatJSON, FormatHTML, FormatXML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q: must be JSON, HTML or XML", s)
	}
}

// FetchFormat returns the format requested from the management API.
// HTML reports are rendered from XML data, so HTML maps to XML.
func (f ReportFormat) FetchFormat() ReportFormat {
	if f == FormatHTML {
		return FormatXML
	}
	return f
}

// MediaType is the Accept header value for the fetch format.
func (f ReportFormat) MediaType() string {
	if f.FetchFormat() == FormatXML {
		return "application/xml"
	}
	return "application/json"
}

// Extension is the file extension of a payload in this format.
func (f ReportFormat) Extension() string {
	if f.FetchFormat() == FormatXML {
		return "xml"
	}
	return "json"
}
