package cmd

import (
	"os"
	"os/signal"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve backtests over HTTP",
	Long: `Serve exposes the pipeline as a JSON API:

  GET  /health
  POST /api/v1/backtest   {"config": {...}, "bars": [...]}

The loaded configuration is the base each request's config is merged over.`,
	RunE: runServe,
}

var (
	serveAddr    string
	serveOrigins []string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", []string{"*"}, "allowed CORS origins")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	srv := api.NewServer(cfg, api.WithLogger(log), api.WithAllowedOrigins(serveOrigins...))
	return srv.ListenAndServe(ctx, serveAddr)
}
