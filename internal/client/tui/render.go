package tui

import (
	"fmt"
	"strings"

	"pollctl/internal/client/api"
)

const barWidth = 24

// percent is the share of n in total, 0 when there are no votes.
func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// bar returns the filled and empty cell counts for a share.
func bar(n, total int64, width int) (int, int) {
	if total == 0 {
		return 0, width
	}
	filled := int(float64(width)*float64(n)/float64(total) + 0.5)
	if filled > width {
		filled = width
	}
	return filled, width - filled
}

// RenderResults is the plain-text bar chart printed by show and vote.
func RenderResults(poll api.Poll, results api.Results) string {
	total := results.Total()

	nameWidth := 0
	for _, c := range poll.Choices {
		if w := len([]rune(c.Text)); w > nameWidth {
			nameWidth = w
		}
	}

	var b strings.Builder
	for _, c := range poll.Choices {
		n := results.Count(c.ID)
		filled, empty := bar(n, total, barWidth)
		fmt.Fprintf(&b, "  [%d] %-*s %s%s %6.1f%% (%d)\n",
			c.ID, nameWidth, c.Text,
			strings.Repeat("█", filled), strings.Repeat("░", empty),
			percent(n, total), n)
	}
	fmt.Fprintf(&b, "  Total votes: %d\n", total)
	return b.String()
}
