package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"onisai/internal/app"
	"onisai/internal/service"
	"onisai/internal/watcher"
)

const shutdownGrace = 5 * time.Second

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP trigger server",
	Long: `Serves the pipeline operations over plain JSON HTTP for Shortcut
integrations. With --watch the inbox watcher runs alongside.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, true, serveWatch)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Submit OCR text files dropped into the inbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, false, true)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also run the inbox watcher")
}

func runDaemon(cmd *cobra.Command, serveHTTP, watchInbox bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	g, ctx := errgroup.WithContext(ctx)

	if serveHTTP {
		server := c.HTTPServer()
		g.Go(func() error {
			logger.Info("starting server", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if watchInbox {
		w := watcher.New(inboxSubmitter{c}, c.Config.Watcher.InboxDir, c.Config.Watcher.Debounce, logger)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}

// inboxSubmitter runs each inbox offer in its own telemetry transaction.
type inboxSubmitter struct {
	c *app.Container
}

func (s inboxSubmitter) SubmitOffer(ctx context.Context, text string, at time.Time) (*service.Result, error) {
	ctx, end := s.c.StartTransaction(ctx, "watch/offer")
	defer end()
	return s.c.Pipeline.SubmitOffer(ctx, text, at)
}
