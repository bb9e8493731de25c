package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// scoreColor picks a color by score band: 85+ green, 70+ yellow, else red.
func scoreColor(score int) string {
	switch {
	case score >= 85:
		return colorGreen
	case score >= 70:
		return colorYellow
	default:
		return colorRed
	}
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 0, 64)
}

func renderMatches(w io.Writer, resp pipeline.Response) error {
	fmt.Fprintf(w, "%s %s  intent %d/5  %dms\n",
		colorize(colorBold, "Client"), resp.ClientID, resp.IntentScore, resp.ExecutionTimeMS)

	if len(resp.Matches) == 0 {
		fmt.Fprintln(w, "No matches above the minimum score.")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("#", "Property", "Type", "Area", "Price", "Score", "Reasons")
		for i, m := range resp.Matches {
			title := m.Property.Title
			if title == "" {
				title = m.PropertyID
			}
			row := []string{
				strconv.Itoa(i + 1),
				title,
				m.Property.Type,
				m.Property.Location.Area,
				formatPrice(m.Property.Price),
				colorize(scoreColor(m.MatchScore), strconv.Itoa(m.MatchScore)),
				strings.Join(m.MatchReasons, "; "),
			}
			if err := table.Append(row); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, r := range resp.Recommendations {
		fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "→"), r)
	}
	for _, in := range resp.MarketInsights {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Insight:"), in.Title)
	}
	if len(resp.Degraded) > 0 {
		printWarning("degraded sources: %s", strings.Join(resp.Degraded, ", "))
	}
	return nil
}

func renderLedger(w io.Writer, records []storage.MatchRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "Ledger is empty.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Property", "Score", "Sent", "Response", "Updated")
	for _, r := range records {
		sent := "no"
		if r.WasSent {
			sent = "yes"
		}
		resp := r.ClientResponse
		if resp == "" {
			resp = "-"
		}
		row := []string{
			r.PropertyID,
			strconv.Itoa(r.MatchScore),
			sent,
			resp,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
