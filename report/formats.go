package report

import (
	"encoding/json"
	"fmt"

	"github.com/shivam-kaushik/co-investigator/session"
)

// Format identifies a report export format.
type Format string

const (
	// FormatMarkdown is the synthesized markdown report.
	FormatMarkdown Format = "markdown"

	// FormatJSON is the structured findings export.
	FormatJSON Format = "json"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatMarkdown: {
		Name:        FormatMarkdown,
		MIMEType:    "text/markdown",
		Extension:   ".md",
		Description: "Markdown research report",
	},
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "Structured findings and evidence",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// structuredExport is the JSON export shape.
type structuredExport struct {
	SessionID string            `json:"session_id"`
	Goal      string            `json:"goal"`
	Report    string            `json:"report,omitempty"`
	Findings  []session.Finding `json:"findings"`
}

// renderJSON serializes a session's research output.
func renderJSON(sess *session.Session) ([]byte, error) {
	out := structuredExport{
		SessionID: sess.ID,
		Goal:      sess.ResearchGoal,
		Report:    sess.Report,
		Findings:  sess.Findings,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
