package reporting

import (
	"fmt"
	"strings"
)

// Format is a report output format
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatHTML  Format = "html"
	FormatJUnit Format = "junit"
)

// AllFormats lists the supported formats in emission order
var AllFormats = []Format{FormatJSON, FormatTable, FormatHTML, FormatJUnit}

// Extension returns the file extension used for the format
func (f Format) Extension() string {
	switch f {
	case FormatTable:
		return "txt"
	case FormatJUnit:
		return "xml"
	default:
		return string(f)
	}
}

// Prefix returns the artifact name prefix used for the format
func (f Format) Prefix() string {
	if f == FormatJUnit {
		return "junit"
	}
	return "report"
}

// ParseFormat parses a single format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown report format %q (supported: %s)", s, formatNames())
}

// ParseFormats parses a comma-separated list of formats, dropping duplicates
func ParseFormats(s string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no report format given (supported: %s)", formatNames())
	}
	return formats, nil
}

func formatNames() string {
	names := make([]string, len(AllFormats))
	for i, f := range AllFormats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
