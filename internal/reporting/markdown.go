package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", r.Title))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if !r.WindowStart.IsZero() {
		sb.WriteString(fmt.Sprintf("Window: %s to %s\n\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339)))
	}

	// Runs
	if len(r.Runs) > 0 {
		sb.WriteString("## Strategy Runs\n\n")
		sb.WriteString("| Strategy | Rows | Alerts | Delivered | Duration |\n")
		sb.WriteString("|----------|------|--------|-----------|----------|\n")
		for _, run := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %s |\n",
				run.Strategy, run.Rows, run.Alerts, run.Delivered, run.Duration.Round(time.Millisecond)))
		}
		sb.WriteString("\n")
	}

	// Aggregates
	sb.WriteString("## Strategy Metrics\n\n")
	if len(r.Aggregates) > 0 {
		sb.WriteString("| Strategy | Alerts | Wallets | Mean | Median | P10 | P90 |\n")
		sb.WriteString("|----------|--------|---------|------|--------|-----|-----|\n")
		for _, a := range r.Aggregates {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.4f | %.4f | %.4f |\n",
				a.Strategy, a.Alerts, a.Wallets,
				a.ConfidenceMean, a.ConfidenceMedian, a.ConfidenceP10, a.ConfidenceP90))
		}
	} else {
		sb.WriteString("No alerts.\n")
	}
	sb.WriteString("\n")

	// Leaders
	sb.WriteString("## Potential Leaders\n\n")
	if len(r.Leaders) > 0 {
		sb.WriteString("| Wallet | Strategies | Alerts | Mints | Max Confidence | First Seen | Last Seen |\n")
		sb.WriteString("|--------|------------|--------|-------|----------------|------------|-----------|\n")
		for _, l := range r.Leaders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %.2f | %s | %s |\n",
				l.Wallet, strings.Join(l.Strategies, ", "), l.Alerts, l.Mints, l.MaxConfidence,
				l.FirstSeen.Format(time.RFC3339), l.LastSeen.Format(time.RFC3339)))
		}
	} else {
		sb.WriteString("No leaders identified.\n")
	}
	sb.WriteString("\n")

	// Alerts
	if len(r.Alerts) > 0 {
		sb.WriteString("## Alerts\n\n")
		sb.WriteString("| Time | Strategy | Wallet | Votes | Confidence | Evidence |\n")
		sb.WriteString("|------|----------|--------|-------|------------|----------|\n")
		for _, a := range r.Alerts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d/%d | %.2f | %s |\n",
				a.Timestamp.Format(time.RFC3339), a.Strategy, a.Wallet,
				a.Votes, a.TotalVotes, a.Confidence, evidenceSummary(a.Evidence.Members, a.Evidence.Mints, a.Evidence.HoldSeconds)))
		}
		sb.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func evidenceSummary(members, mints []string, hold float64) string {
	var parts []string
	if len(members) > 0 {
		parts = append(parts, "group "+strings.Join(members, ","))
	}
	if len(mints) > 0 {
		parts = append(parts, fmt.Sprintf("%d mints", len(mints)))
	}
	if hold > 0 {
		parts = append(parts, fmt.Sprintf("hold %.1fs", hold))
	}
	return strings.Join(parts, "; ")
}
