package steps

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryTitle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	summaryLabel = lipgloss.NewStyle().Faint(true).Width(12)
	summaryPrice = lipgloss.NewStyle().Bold(true)
)

// RenderSummary draws the confirm-step box for d.
func RenderSummary(d ListingDraft, duration time.Duration) string {
	item := nftLabel(nftOf(d))
	rows := []string{
		summaryTitle.Render("Review listing"),
		row("Collection", d.Collection),
		row("Item", item),
		row("Method", pricingLine(d)),
		row("Price", summaryPrice.Render(d.Price+" ETH")),
	}
	if duration > 0 {
		rows = append(rows, row("Expires in", humanDuration(duration)))
	}
	return summaryBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, summaryLabel.Render(label), value)
}

func pricingLine(d ListingDraft) string {
	if !d.Method.Relative() {
		return string(d.Method)
	}
	return fmt.Sprintf("%s %s%% (ref %s ETH)", d.Method, d.Value, d.ReferencePrice)
}

func humanDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	if days >= 1 && d%(24*time.Hour) == 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
