package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab/internal/sqllab"
	"github.com/chatlab/chatlab/internal/store"
)

var sqlRowCap int

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a read-only SELECT against the corpus store",
	Long: `sql executes a single SELECT statement against the corpus database.
Anything that is not a SELECT is rejected; result sets are capped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := sqllab.Query(cmd.Context(), st.DB(), args[0], sqlRowCap)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(res.Rows))
		for _, r := range res.Rows {
			cells := make([]string, len(r))
			for i, v := range r {
				if v == nil {
					cells[i] = "NULL"
				} else {
					cells[i] = fmt.Sprintf("%v", v)
				}
			}
			rows = append(rows, cells)
		}
		printTable(res.Columns, rows)

		suffix := ""
		if res.Limited {
			suffix = " (truncated)"
		}
		fmt.Printf("%d rows in %s%s\n", res.RowCount, res.Duration.Round(time.Millisecond), suffix)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the corpus store tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		schemas, err := st.TableSchemas()
		if err != nil {
			return err
		}
		for _, table := range schemas {
			fmt.Println(table.Name)
			for _, col := range table.Columns {
				pk := ""
				if col.PK {
					pk = "  PK"
				}
				fmt.Printf("  %-22s %s%s\n", col.Name, col.Type, pk)
			}
			fmt.Println()
		}
		return nil
	},
}

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "Report the schema version, migrating the database when it is behind",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// OpenReadOnly succeeds only when the stored schema version equals
		// CurrentVersion, so on this path the pending list is empty.
		st, err := store.OpenReadOnly(cfg.DatabasePath())
		if err != nil {
			// A schema that is behind (or no database yet) falls back to the
			// read-write open, which applies the pending migrations; the
			// steps it applies are not listed.
			rw, openErr := openStore()
			if openErr != nil {
				return err
			}
			defer rw.Close()
			fmt.Printf("Database migrated to version %d\n", store.CurrentVersion())
			return nil
		}
		defer st.Close()

		pending, err := st.PendingMigrations()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Printf("Schema up to date at version %d\n", store.CurrentVersion())
			return nil
		}
		for _, m := range pending {
			fmt.Printf("v%d  %s — %s\n", m.Version, m.Description, m.UserMessage)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("Corpora:   %d\n", stats.CorpusCount)
		fmt.Printf("Members:   %d\n", stats.MemberCount)
		fmt.Printf("Messages:  %d\n", stats.MessageCount)
		fmt.Printf("Database:  %.1f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	sqlCmd.Flags().IntVar(&sqlRowCap, "limit", 0, "row cap (default 1000)")
	rootCmd.AddCommand(sqlCmd, schemaCmd, migrationsCmd, statsCmd)
}
