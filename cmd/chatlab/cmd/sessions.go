package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab/internal/catalog"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage imported corpora",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported corpora",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := catalog.New(st).List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No corpora imported yet. Run 'chatlab import <file>' first.")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			c := e.Corpus
			active := ""
			if e.Active {
				active = "*"
			}
			span := ""
			if c.MinTS.Valid && c.MaxTS.Valid {
				span = fmt.Sprintf("%s – %s", formatTS(c.MinTS.Int64), formatTS(c.MaxTS.Int64))
			}
			flags := ""
			if c.Partial {
				flags = "partial"
			}
			rows = append(rows, []string{active, c.ID, c.Name, c.Platform, c.ChatType, span, flags})
		}
		printTable([]string{"", "ID", "Name", "Platform", "Type", "Span", ""}, rows)
		return nil
	},
}

var sessionsSelectCmd = &cobra.Command{
	Use:   "select <corpus-id>",
	Short: "Make a corpus the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := catalog.New(st).Select(args[0]); err != nil {
			return err
		}
		fmt.Printf("Selected %s\n", args[0])
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <corpus-id>",
	Short: "Delete a corpus and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := catalog.New(st).Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var sessionsSetOwnerCmd = &cobra.Command{
	Use:   "set-owner <corpus-id> <platform-id|->",
	Short: "Record which member is you ('-' clears)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var pid *string
		if args[1] != "-" {
			pid = &args[1]
		}
		if err := catalog.New(st).SetOwner(args[0], pid); err != nil {
			return err
		}
		if pid == nil {
			fmt.Printf("Cleared owner of %s\n", args[0])
		} else {
			fmt.Printf("Owner of %s is now %s\n", args[0], *pid)
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsSelectCmd, sessionsDeleteCmd, sessionsSetOwnerCmd)
	rootCmd.AddCommand(sessionsCmd)
}
