package cmd

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/granito/portfolio/internal/service"
	"github.com/spf13/cobra"
)

var seedUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148",
}

var seedReferrers = []string{"", "", "https://github.com/", "https://www.google.com/", "https://news.ycombinator.com/"}

var seedContacts = []service.ContactInput{
	{Name: "Ada Lovelace", Email: "ada@example.com", Subject: "Collaboration", Message: "Loved the **analytics** project, open to a chat?"},
	{Name: "Alan Turing", Email: "alan@example.org", Message: "Quick question about your data pipeline post."},
	{Name: "Grace Hopper", Email: "grace@example.net", Subject: "Hiring", Message: "We have a backend role that looks like a great fit."},
}

// 测试数据生成器
func newSeedCommand() *cobra.Command {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate sample visitor events and contact messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			visits, _ := cmd.Flags().GetInt("visits")
			days, _ := cmd.Flags().GetInt("days")
			withContacts, _ := cmd.Flags().GetBool("contacts")
			seed, _ := cmd.Flags().GetUint64("seed")
			if days <= 0 {
				days = 1
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			pages := a.Config.Visitors.TrackedPaths
			if len(pages) == 0 {
				pages = []string{"/"}
			}

			// 从最早的时间点开始递增，保证日志按时间顺序追加
			now := time.Now().UTC()
			current := now.Add(-time.Duration(days) * 24 * time.Hour)
			step := time.Duration(days) * 24 * time.Hour / time.Duration(max(visits, 1))
			a.Visitors.WithClock(func() time.Time { return current })

			for i := 0; i < visits; i++ {
				current = current.Add(step/2 + time.Duration(rng.Int64N(int64(step)+1)))
				if current.After(now) {
					current = now
				}
				page := pages[rng.IntN(len(pages))]
				if page == "/blog/:id" {
					page = fmt.Sprintf("/blog/%d", rng.IntN(2)+1)
				}
				if err := a.Visitors.Track(ctx, service.VisitInput{
					IP:        fmt.Sprintf("198.51.100.%d", rng.IntN(40)+1),
					UserAgent: seedUserAgents[rng.IntN(len(seedUserAgents))],
					Page:      page,
					Referrer:  seedReferrers[rng.IntN(len(seedReferrers))],
				}); err != nil {
					return fmt.Errorf("seed visit %d: %w", i, err)
				}
			}
			fmt.Fprintf(out, "✅ 已生成 %d 条访问记录（最近 %d 天）\n", visits, days)

			if withContacts {
				for _, input := range seedContacts {
					input.IP = "198.51.100.200"
					if _, err := a.Contacts.Submit(ctx, input); err != nil {
						return fmt.Errorf("seed contact: %w", err)
					}
				}
				fmt.Fprintf(out, "✅ 已生成 %d 条留言\n", len(seedContacts))
			}
			return nil
		},
	}
	seedCmd.Flags().Int("visits", 200, "Number of visitor events to generate")
	seedCmd.Flags().Int("days", 30, "Spread events over the last N days")
	seedCmd.Flags().Bool("contacts", true, "Also create sample contact messages")
	seedCmd.Flags().Uint64("seed", 42, "Random seed")
	return seedCmd
}
