// Package formatter renders routing decisions, summaries and the server registry for the console.
package formatter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Ch00k/georouter/internal/router"
)

// ANSI color codes
const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

const ruler = "=============================================="

func paint(color, s string, useColor bool) string {
	if !useColor {
		return s
	}
	return color + s + reset
}

// FormatServerAdded formats the confirmation shown after a server is registered
func FormatServerAdded(s router.Server, useColor bool) string {
	return paint(green, fmt.Sprintf("Server '%s' added successfully at (%s, %s)", s.Name, formatCoord(s.Latitude), formatCoord(s.Longitude)), useColor) + "\n"
}

// FormatDecision formats a routing decision with every candidate, highlighting the winner
func FormatDecision(d *router.Decision, useColor bool) string {
	var output strings.Builder

	output.WriteString("\n")
	output.WriteString(paint(cyan, fmt.Sprintf("===== Processing Request #%d =====", d.RequestID), useColor))
	output.WriteString("\n")
	output.WriteString(paint(cyan, fmt.Sprintf("Origin: %s (%s, %s)", d.Origin, formatCoord(d.Latitude), formatCoord(d.Longitude)), useColor))
	output.WriteString("\n")
	output.WriteString(paint(yellow, "Evaluating all servers for lowest latency...", useColor))
	output.WriteString("\n")

	for i, c := range d.Candidates {
		line := fmt.Sprintf("%s: %s km, %s ms", c.Server.Name, formatDistance(c.DistanceKm), formatLatency(c.LatencyMs))
		if i == d.WinnerIndex {
			output.WriteString(paint(green, "  -> "+line+" (Fastest)", useColor))
		} else {
			output.WriteString("     " + line)
		}
		output.WriteString("\n")
	}

	output.WriteString(paint(green, fmt.Sprintf(
		">> Final Routing Decision: Request #%d served by %s [%s ms]",
		d.RequestID,
		d.ServerName,
		formatLatency(d.LatencyMs),
	), useColor))
	output.WriteString("\n")
	output.WriteString(paint(cyan, ruler, useColor))
	output.WriteString("\n")

	return output.String()
}

// FormatNoServers formats the message shown when a request cannot be routed
func FormatNoServers(useColor bool) string {
	return paint(red, "No servers available to handle the request!", useColor) + "\n"
}

// FormatSummary formats aggregate statistics. A nil summary means nothing has been routed yet.
func FormatSummary(s *router.Summary, useColor bool) string {
	var output strings.Builder

	output.WriteString("\n")
	output.WriteString(paint(cyan, "========= Performance Summary =========", useColor))
	output.WriteString("\n")

	if s == nil {
		output.WriteString(paint(red, "No requests processed.", useColor))
		output.WriteString("\n")
		return output.String()
	}

	output.WriteString(fmt.Sprintf("Total Requests: %d\n", s.RequestCount))
	output.WriteString(fmt.Sprintf("Average Response Time: %s ms\n", formatLatency(s.AverageLatency)))
	output.WriteString(fmt.Sprintf("Fastest Response Time: %s ms\n", formatLatency(s.MinLatency)))
	output.WriteString(fmt.Sprintf("Slowest Response Time: %s ms\n", formatLatency(s.MaxLatency)))
	output.WriteString(paint(cyan, "=========================================", useColor))
	output.WriteString("\n")

	return output.String()
}

// FormatMenu formats the console menu
func FormatMenu(useColor bool) string {
	var output strings.Builder

	output.WriteString("\n")
	output.WriteString(paint(cyan, "--- Router Console ---", useColor))
	output.WriteString("\n")
	output.WriteString("1. Add new server\n")
	output.WriteString("2. Send new request\n")
	output.WriteString("3. Show performance summary\n")
	output.WriteString("4. Exit\n")

	return output.String()
}

// FormatError formats a user-facing error message
func FormatError(msg string, useColor bool) string {
	return paint(red, msg, useColor) + "\n"
}

// FormatGoodbye formats the exit message
func FormatGoodbye(useColor bool) string {
	return paint(green, "Exiting router service. Goodbye!", useColor) + "\n"
}

// FormatServerTable formats the registry as a table string
func FormatServerTable(servers []router.Server) string {
	if len(servers) == 0 {
		return ""
	}

	headers := []string{"#", "Name", "Latitude", "Longitude"}
	rows := make([][]string, len(servers))

	for i, s := range servers {
		rows[i] = []string{
			fmt.Sprintf("%d", i+1),
			s.Name,
			formatCoord(s.Latitude),
			formatCoord(s.Longitude),
		}
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			cellWidth := utf8.RuneCountInString(cell)
			if cellWidth > widths[i] {
				widths[i] = cellWidth
			}
		}
	}

	var output strings.Builder

	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = padRight(cell, widths[i])
		}
		output.WriteString(strings.TrimRight(strings.Join(parts, "   "), " "))
		output.WriteString("\n")
	}

	writeRow(headers)

	separators := make([]string, len(headers))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	writeRow(separators)

	for _, row := range rows {
		writeRow(row)
	}

	return output.String()
}

// padRight pads a string with spaces on the right to reach the specified width
func padRight(s string, width int) string {
	runeCount := utf8.RuneCountInString(s)
	if runeCount >= width {
		return s
	}
	return s + strings.Repeat(" ", width-runeCount)
}

func formatDistance(distance float64) string {
	return fmt.Sprintf("%.2f", distance)
}

func formatLatency(latency float64) string {
	return fmt.Sprintf("%.2f", latency)
}

// formatCoord prints coordinates without trailing zeros
func formatCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}
