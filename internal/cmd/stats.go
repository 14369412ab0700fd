package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/granito/portfolio/internal/service"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
)

const maxBarWidth = 40

func newStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print visitor statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			top, _ := cmd.Flags().GetInt("top")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			stats, err := a.Visitors.Stats(ctx)
			if err != nil {
				return err
			}
			daily, err := a.Visitors.DailySeries(ctx, days)
			if err != nil {
				return err
			}
			pages, err := a.Visitors.TopPages(ctx, top)
			if err != nil {
				return err
			}

			renderStats(cmd.OutOrStdout(), stats, daily, pages)
			return nil
		},
	}
	statsCmd.Flags().Int("days", 7, "Days of daily history to show")
	statsCmd.Flags().Int("top", 5, "Number of top pages to show")
	return statsCmd
}

func renderStats(w io.Writer, stats service.VisitorStats, daily map[string]int, pages []service.PageCount) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Visitors"))
	b.WriteString("\n")
	rows := []struct {
		label string
		value int
	}{
		{"total", stats.Total},
		{"today", stats.Today},
		{"this week", stats.ThisWeek},
		{"this month", stats.ThisMonth},
		{"unique ips", stats.UniqueIPs},
		{"unique today", stats.UniqueToday},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-13s", row.label)), valueStyle.Render(fmt.Sprint(row.value)))
	}

	if len(daily) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Daily"))
		b.WriteString("\n")

		days := make([]string, 0, len(daily))
		peak := 0
		for day, count := range daily {
			days = append(days, day)
			peak = max(peak, count)
		}
		slices.Sort(days)
		for _, day := range days {
			width := daily[day] * maxBarWidth / peak
			fmt.Fprintf(&b, "  %s %s %d\n", labelStyle.Render(day), barStyle.Render(strings.Repeat("█", max(width, 1))), daily[day])
		}
	}

	if len(pages) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Top pages"))
		b.WriteString("\n")
		for _, page := range pages {
			fmt.Fprintf(&b, "  %s %s\n", valueStyle.Render(fmt.Sprintf("%6d", page.Count)), page.Page)
		}
	}

	io.WriteString(w, b.String())
}
