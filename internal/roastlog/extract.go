package roastlog

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RoastReport is what ExtractRoast finds in a free-form roast log.
type RoastReport struct {
	Title       string
	Date        string
	Beans       string
	RoastLevel  string
	Duration    string
	Temperature string
	Notes       []string
	Events      []RoastEvent
}

type RoastEvent struct {
	At   string
	Text string
}

var (
	titlePattern       = regexp.MustCompile(`(?i)Title:[ \t]*(.*)`)
	datePattern        = regexp.MustCompile(`(?i)Date:[ \t]*(.*)`)
	beansPattern       = regexp.MustCompile(`(?i)Beans?:[ \t]*(.*)`)
	roastLevelPattern  = regexp.MustCompile(`(?i)Roast\s*Level:[ \t]*(.*)`)
	durationPattern    = regexp.MustCompile(`(?i)Duration:[ \t]*(.*)`)
	temperaturePattern = regexp.MustCompile(`(?i)Temp(?:erature)?:[ \t]*(.*)`)
	notePattern        = regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]*(.*)$`)
	eventPattern       = regexp.MustCompile(`(\d+:\d+:\d+)[ \t]*(.*)`)
)

// ExtractRoast scans labeled lines ("Title:", "Beans:", ...), bullet notes
// and H:MM:SS timestamped events. now supplies the date for a synthesized
// title when the log names beans but no date.
func ExtractRoast(src string, now time.Time) RoastReport {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	report := RoastReport{
		Title:       firstMatch(titlePattern, src),
		Date:        firstMatch(datePattern, src),
		Beans:       firstMatch(beansPattern, src),
		RoastLevel:  firstMatch(roastLevelPattern, src),
		Duration:    firstMatch(durationPattern, src),
		Temperature: firstMatch(temperaturePattern, src),
	}

	for _, match := range notePattern.FindAllStringSubmatch(src, -1) {
		report.Notes = append(report.Notes, strings.TrimSpace(match[1]))
	}
	for _, match := range eventPattern.FindAllStringSubmatch(src, -1) {
		report.Events = append(report.Events, RoastEvent{At: match[1], Text: strings.TrimSpace(match[2])})
	}

	if report.Title == "" && (report.Beans != "" || report.Date != "") {
		beans := report.Beans
		if beans == "" {
			beans = "Unknown Beans"
		}
		date := report.Date
		if date == "" {
			date = now.Format("2006-01-02")
		}
		report.Title = beans + " - " + date
	}
	return report
}

func firstMatch(pattern *regexp.Regexp, src string) string {
	match := pattern.FindStringSubmatch(src)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func (report RoastReport) Markdown() string {
	var lines []string

	if report.Title != "" {
		lines = append(lines, "# "+report.Title, "")
	} else {
		lines = append(lines, "# Roast Report", "")
	}

	lines = append(lines, "| Attribute | Value |", "|----------|-------|")
	for _, row := range []struct{ label, value string }{
		{"Date", report.Date},
		{"Beans", report.Beans},
		{"Roast Level", report.RoastLevel},
		{"Duration", report.Duration},
		{"Temperature", report.Temperature},
	} {
		if row.value != "" {
			lines = append(lines, fmt.Sprintf("| %s | %s |", row.label, row.value))
		}
	}
	lines = append(lines, "")

	if len(report.Events) > 0 {
		lines = append(lines, "## Roast Timeline", "")
		for _, event := range report.Events {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", event.At, event.Text))
		}
		lines = append(lines, "")
	}

	if len(report.Notes) > 0 {
		lines = append(lines, "## Tasting Notes", "")
		for _, note := range report.Notes {
			lines = append(lines, "- "+note)
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
