package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab/internal/analytics"
	"github.com/chatlab/chatlab/internal/catalog"
	"github.com/chatlab/chatlab/internal/store"
)

var (
	anCorpusID string
	anStart    string
	anEnd      string
)

var analyticsCmd = &cobra.Command{
	Use:     "analytics",
	Aliases: []string{"an"},
	Short:   "Run statistics over a corpus",
}

// resolveCorpus picks --corpus or the active catalog selection.
func resolveCorpus(st *store.Store) (string, error) {
	if anCorpusID != "" {
		return anCorpusID, nil
	}
	active, err := catalog.New(st).Active()
	if err != nil {
		return "", err
	}
	if active == "" {
		return "", fmt.Errorf("no corpus selected; pass --corpus or run 'chatlab sessions select'")
	}
	return active, nil
}

// resolveFilter parses --start/--end into a time filter.
func resolveFilter() (analytics.TimeFilter, error) {
	var f analytics.TimeFilter
	if anStart != "" {
		ts, err := parseTimeArg(anStart)
		if err != nil {
			return f, err
		}
		f.StartTS = &ts
	}
	if anEnd != "" {
		ts, err := parseTimeArg(anEnd)
		if err != nil {
			return f, err
		}
		f.EndTS = &ts
	}
	return f, nil
}

// withEngine opens the store and hands an analytics engine to fn.
func withEngine(fn func(*store.Store, *analytics.Engine, string, analytics.TimeFilter) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	corpusID, err := resolveCorpus(st)
	if err != nil {
		return err
	}
	filter, err := resolveFilter()
	if err != nil {
		return err
	}
	return fn(st, analytics.New(st.DB(), timezone()), corpusID, filter)
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Per-member message counts and shares",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			rows, err := eng.Activity(cmd.Context(), corpusID, f)
			if err != nil {
				return err
			}
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				name := r.Name
				if r.IsOwner {
					name += " (me)"
				}
				out = append(out, []string{
					strconv.FormatInt(r.MemberID, 10),
					name,
					strconv.FormatInt(r.MessageCount, 10),
					fmt.Sprintf("%.1f%%", r.Percentage*100),
				})
			}
			printTable([]string{"ID", "Member", "Messages", "Share"}, out)
			return nil
		})
	},
}

var dragonKingCmd = &cobra.Command{
	Use:   "dragon-king",
	Short: "Per-day top talker, counted per member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			res, err := eng.DragonKing(cmd.Context(), corpusID, f)
			if err != nil {
				return err
			}
			fmt.Printf("%d days inspected\n", res.TotalDays)
			out := make([][]string, 0, len(res.Rankings))
			for _, r := range res.Rankings {
				out = append(out, []string{
					strconv.FormatInt(r.MemberID, 10),
					r.Name,
					strconv.FormatInt(r.DaysWon, 10),
				})
			}
			printTable([]string{"ID", "Member", "Days won"}, out)
			return nil
		})
	},
}

var streaksCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Monologue streak statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			opts := analytics.StreakOptions{
				MinRun:  cfg.Analytics.StreakMinRun,
				IdleGap: int64(cfg.Analytics.StreakIdleGap),
			}
			res, err := eng.MonologueStreaks(cmd.Context(), corpusID, f, opts)
			if err != nil {
				return err
			}
			out := make([][]string, 0, len(res.Members))
			for _, m := range res.Members {
				out = append(out, []string{
					strconv.FormatInt(m.MemberID, 10),
					m.Name,
					strconv.FormatInt(m.TotalStreaks, 10),
					strconv.FormatInt(m.MaxCombo, 10),
					fmt.Sprintf("%d/%d/%d", m.LowStreak, m.MidStreak, m.HighStreak),
				})
			}
			printTable([]string{"ID", "Member", "Streaks", "Max combo", "Low/Mid/High"}, out)
			if res.MaxComboRecord != nil {
				fmt.Printf("Record: member %d with %d in a row starting %s\n",
					res.MaxComboRecord.MemberID,
					res.MaxComboRecord.ComboLength,
					formatTS(res.MaxComboRecord.StartTS))
			}
			return nil
		})
	},
}

var repeatChainsCmd = &cobra.Command{
	Use:   "repeat-chains",
	Short: "Identical-text echo chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			opts := analytics.ChainOptions{IdleGap: int64(cfg.Analytics.ChainIdleGap)}
			res, err := eng.RepeatChains(cmd.Context(), corpusID, f, opts)
			if err != nil {
				return err
			}

			section := func(title string, stats []analytics.MemberChainStat) {
				fmt.Println(title)
				out := make([][]string, 0, len(stats))
				for _, s := range stats {
					out = append(out, []string{
						strconv.FormatInt(s.MemberID, 10),
						s.Name,
						strconv.FormatInt(s.Count, 10),
						fmt.Sprintf("%.2f%%", s.Rate*100),
					})
				}
				printTable([]string{"ID", "Member", "Count", "Rate"}, out)
				fmt.Println()
			}
			section("Originators", res.Originators)
			section("Initiators", res.Initiators)
			section("Breakers", res.Breakers)

			if len(res.ChainLengthDistribution) > 0 {
				lengths := make([]int, 0, len(res.ChainLengthDistribution))
				for l := range res.ChainLengthDistribution {
					lengths = append(lengths, l)
				}
				sort.Ints(lengths)
				fmt.Println("Chain lengths")
				for _, l := range lengths {
					fmt.Printf("  %2d: %d\n", l, res.ChainLengthDistribution[l])
				}
				fmt.Println()
			}

			if len(res.HotContents) > 0 {
				fmt.Println("Hot contents")
				out := make([][]string, 0, len(res.HotContents))
				for _, h := range res.HotContents {
					out = append(out, []string{
						h.Content,
						h.OriginatorName,
						strconv.FormatInt(h.Count, 10),
						strconv.Itoa(h.MaxChainLength),
						formatTS(h.LastTS),
					})
				}
				printTable([]string{"Content", "Originator", "Times", "Max length", "Last seen"}, out)
			}
			return nil
		})
	},
}

var catchphrasesCmd = &cobra.Command{
	Use:   "catchphrases",
	Short: "Most repeated texts per member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			opts := analytics.CatchphraseOptions{TopK: cfg.Analytics.CatchphraseTopK}
			res, err := eng.Catchphrases(cmd.Context(), corpusID, f, opts)
			if err != nil {
				return err
			}
			for _, m := range res.Members {
				fmt.Printf("%s (#%d)\n", m.Name, m.MemberID)
				for _, c := range m.Catchphrases {
					fmt.Printf("  %4d× %s\n", c.Count, c.Content)
				}
			}
			return nil
		})
	},
}

var nameHistoryCmd = &cobra.Command{
	Use:   "name-history <member-id>",
	Short: "Display-name history of a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memberID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid member id %q", args[0])
		}
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			intervals, err := eng.NameHistory(cmd.Context(), corpusID, memberID)
			if err != nil {
				return err
			}
			for _, iv := range intervals {
				end := "now"
				if iv.EndTS != nil {
					end = formatTS(*iv.EndTS)
				}
				fmt.Printf("%s  %s → %s\n", iv.Name, formatTS(iv.StartTS), end)
			}
			return nil
		})
	},
}

var sessionsAnalysisCmd = &cobra.Command{
	Use:   "bursts",
	Short: "Conversation bursts split at idle gaps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(st *store.Store, eng *analytics.Engine, corpusID string, f analytics.TimeFilter) error {
			rows, err := eng.Sessions(cmd.Context(), corpusID, f, int64(cfg.Analytics.SessionIdleGap))
			if err != nil {
				return err
			}
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{
					strconv.FormatInt(r.ID, 10),
					formatTS(r.StartTS),
					formatTS(r.EndTS),
					strconv.FormatInt(r.MessageCount, 10),
				})
			}
			printTable([]string{"#", "Start", "End", "Messages"}, out)
			return nil
		})
	},
}

func init() {
	analyticsCmd.PersistentFlags().StringVar(&anCorpusID, "corpus", "", "corpus id (default: active selection)")
	analyticsCmd.PersistentFlags().StringVar(&anStart, "start", "", "filter start (YYYY-MM-DD or epoch seconds)")
	analyticsCmd.PersistentFlags().StringVar(&anEnd, "end", "", "filter end (exclusive)")
	analyticsCmd.AddCommand(activityCmd, dragonKingCmd, streaksCmd, repeatChainsCmd,
		catchphrasesCmd, nameHistoryCmd, sessionsAnalysisCmd)
	rootCmd.AddCommand(analyticsCmd)
}
