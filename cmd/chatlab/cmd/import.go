package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/importer"
)

var (
	importBatchSize int
	importCorpusID  string
	importTimezone  string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a chat export file into a new corpus",
	Long: `Import sniffs the file format, parses it, and writes a normalized
corpus. Re-run with --corpus to merge a fresh export into an existing
corpus; duplicate messages are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		loc := timezone()
		if importTimezone != "" {
			l, err := time.LoadLocation(importTimezone)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", importTimezone, err)
			}
			loc = l
		}

		tty := stdoutIsTTY()
		opts := importer.Options{
			BatchSize: importBatchSize,
			Location:  loc,
			CorpusID:  importCorpusID,
			Progress: func(p event.Progress) {
				if tty {
					fmt.Printf("\r%-10s %8d messages  %s", p.Phase, p.MessagesProcessed, progressBytes(p))
				} else {
					logger.Info("progress",
						"phase", p.Phase,
						"messages", p.MessagesProcessed,
						"bytes", p.BytesProcessed,
					)
				}
			},
		}
		if opts.BatchSize <= 0 {
			opts.BatchSize = cfg.Import.BatchSize
		}

		coord := importer.New(st, logger)
		summary, err := coord.Import(cmd.Context(), args[0], opts)
		if tty {
			fmt.Println()
		}
		if err != nil {
			if summary != nil && summary.Partial {
				fmt.Printf("Import interrupted; corpus %s marked partial (%d messages written)\n",
					summary.CorpusID, summary.MessagesAdded)
			}
			return err
		}

		fmt.Printf("Imported %s\n", args[0])
		fmt.Printf("  corpus:   %s (%s)\n", summary.CorpusID, summary.Format)
		fmt.Printf("  messages: %d added, %d skipped, %d record errors\n",
			summary.MessagesAdded, summary.MessagesSkipped, summary.RecordErrors)
		fmt.Printf("  members:  %d\n", summary.MemberCount)
		if summary.RepliesBound > 0 {
			fmt.Printf("  replies:  %d bound on second pass\n", summary.RepliesBound)
		}
		for _, w := range summary.Warnings {
			fmt.Printf("  warning:  %s: %s\n", w.Code, w.Message)
		}
		fmt.Printf("  duration: %s\n", summary.Duration.Round(time.Millisecond))
		return nil
	},
}

func progressBytes(p event.Progress) string {
	if p.TotalBytes <= 0 {
		return ""
	}
	return fmt.Sprintf("(%d%%)", p.BytesProcessed*100/p.TotalBytes)
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "messages per write transaction (default from config)")
	importCmd.Flags().StringVar(&importCorpusID, "corpus", "", "re-import into an existing corpus")
	importCmd.Flags().StringVar(&importTimezone, "timezone", "", "timezone for wall-clock exports (IANA name)")
	rootCmd.AddCommand(importCmd)
}
