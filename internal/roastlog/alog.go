package roastlog

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AlogReport holds the descriptive fields of an Artisan .alog profile.
type AlogReport struct {
	Title         string
	File          string
	Date          string
	Organization  string
	Operator      string
	Beans         string
	Machine       string
	RoastingNotes string
	CuppingNotes  string
}

// ParseAlog reads the profile record from src. name is the source file path;
// only its base name is kept.
func ParseAlog(name, src string) (AlogReport, error) {
	value, err := ParseLiteral(src)
	if err != nil {
		return AlogReport{}, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
	}
	record, ok := value.(map[string]any)
	if !ok {
		return AlogReport{}, fmt.Errorf("parse %s: %w: top-level value is %T, want a dict", filepath.Base(name), ErrSyntax, value)
	}

	report := AlogReport{
		Title:         field(record, "title"),
		Organization:  field(record, "organization"),
		Operator:      field(record, "operator"),
		Beans:         field(record, "beans"),
		Machine:       field(record, "roastertype"),
		RoastingNotes: field(record, "roastingnotes"),
		CuppingNotes:  field(record, "cuppingnotes"),
		Date:          roastDate(field(record, "roastisodate"), field(record, "roasttime")),
	}
	if name != "" {
		report.File = filepath.Base(name)
	}
	return report, nil
}

func field(record map[string]any, key string) string {
	switch value := record[key].(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

// roastDate joins the ISO date with the roast time trimmed to minutes.
func roastDate(date, clock string) string {
	if date == "" || clock == "" {
		return date + clock
	}
	if parsed, err := time.Parse("15:04:05", clock); err == nil {
		clock = parsed.Format("15:04")
	}
	return date + " " + clock
}

var leftoverHex = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)

// decodeLeftovers expands the \n and \xHH sequences Artisan leaves escaped
// inside some text fields.
func decodeLeftovers(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	return leftoverHex.ReplaceAllStringFunc(text, func(match string) string {
		code, err := strconv.ParseUint(match[2:], 16, 8)
		if err != nil {
			return match
		}
		return string(rune(code))
	})
}

func (report AlogReport) Markdown() string {
	var lines []string

	if report.Title != "" {
		lines = append(lines, "# "+report.Title)
	} else {
		lines = append(lines, "# Roast Report")
	}

	for _, meta := range []struct{ label, value string }{
		{"File", report.File},
		{"Date", report.Date},
		{"Organization", report.Organization},
		{"Operator", report.Operator},
	} {
		if meta.value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", meta.label, meta.value))
		}
	}
	lines = append(lines, "")

	if report.Beans != "" {
		lines = append(lines, "## Beans")
		lines = append(lines, strings.Split(decodeLeftovers(report.Beans), "\n")...)
		lines = append(lines, "")
	}
	if report.Machine != "" {
		lines = append(lines, "## Machine", "Model: "+report.Machine, "")
	}
	if report.RoastingNotes != "" {
		lines = append(lines, "## Roasting Notes", decodeLeftovers(report.RoastingNotes), "")
	}
	if report.CuppingNotes != "" {
		lines = append(lines, "## Cupping Notes", decodeLeftovers(report.CuppingNotes), "")
	}

	lines = append(lines, "---")
	return strings.Join(lines, "\n")
}
