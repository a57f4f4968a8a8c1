package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/updater"
)

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// byWeight returns tickers ordered by descending weight.
func byWeight(w models.Weights) []string {
	tickers := w.Tickers()
	sort.SliceStable(tickers, func(i, j int) bool { return w[tickers[i]] > w[tickers[j]] })
	return tickers
}

func allocationMarkdown(a *models.Allocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Allocation %s\n\n", a.Date)
	b.WriteString("| Ticker | Weight |\n|:---|---:|\n")
	for _, t := range byWeight(a.Weights) {
		fmt.Fprintf(&b, "| %s | %.2f%% |\n", t, a.Weights[t]*100)
	}
	b.WriteString("\n## Metrics\n\n")
	b.WriteString("| Expected return | Volatility | Sharpe |\n|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %.2f%% | %.2f%% | %.2f |\n",
		a.Metrics.ExpectedReturn*100, a.Metrics.Volatility*100, a.Metrics.SharpeRatio)
	return b.String()
}

func historyMarkdown(history []models.Allocation) string {
	if len(history) == 0 {
		return "No allocations stored yet.\n"
	}
	var b strings.Builder
	b.WriteString("# Allocation history\n\n")
	b.WriteString("| Date | Top holdings | Exp. return | Volatility | Sharpe |\n|:---|:---|---:|---:|---:|\n")
	for _, a := range history {
		top := byWeight(a.Weights)
		if len(top) > 3 {
			top = top[:3]
		}
		parts := make([]string, len(top))
		for i, t := range top {
			parts[i] = fmt.Sprintf("%s %.0f%%", t, a.Weights[t]*100)
		}
		fmt.Fprintf(&b, "| %s | %s | %.2f%% | %.2f%% | %.2f |\n",
			a.Date, strings.Join(parts, ", "),
			a.Metrics.ExpectedReturn*100, a.Metrics.Volatility*100, a.Metrics.SharpeRatio)
	}
	return b.String()
}

func reportMarkdown(rep updater.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Update %s\n\n", rep.StartedAt.Format("2006-01-02 15:04 MST"))

	in := rep.Ingest
	b.WriteString("## Ingestion\n\n")
	if in.OK {
		fmt.Fprintf(&b, "Fetched %d prices for %s to %s, %d new.\n\n", in.Fetched, in.Start, in.End, in.Inserted)
	} else {
		fmt.Fprintf(&b, "Failed: %s\n\n", in.Reason)
	}

	rb := rep.Rebalance
	b.WriteString("## Rebalance\n\n")
	fmt.Fprintf(&b, "Status: **%s**", rb.Status)
	if rb.Reason != "" {
		fmt.Fprintf(&b, " (%s)", rb.Reason)
	}
	b.WriteString("\n\n")
	if rb.Allocation != nil {
		b.WriteString(allocationMarkdown(rb.Allocation))
	}
	fmt.Fprintf(&b, "\n_Completed in %s_\n", rep.Duration)
	return b.String()
}
