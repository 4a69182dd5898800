package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chatlab/chatlab/internal/api"
	"github.com/chatlab/chatlab/internal/store"
	"github.com/chatlab/chatlab/internal/worker"
)

var serveWorkers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the boundary API server for the graphical shell",
	Long: `serve starts the local HTTP API the shell talks to. Imports and
analytics run on a worker pool; the serving thread never touches the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		openRO := func() (*store.Store, error) {
			return store.OpenReadOnly(cfg.DatabasePath())
		}
		pool := worker.New(st, openRO, serveWorkers, logger)
		defer pool.Stop()

		server := api.NewServer(cfg, st, pool, timezone(), logger)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "analytics worker count (default: min(4, CPUs))")
	rootCmd.AddCommand(serveCmd)
}
