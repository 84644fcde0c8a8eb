package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naka-gawa/mrnag/internal/server"
	"github.com/naka-gawa/mrnag/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the Slack slash command",
	Long: `Starts an HTTP service answering the /mrnag Slack slash command. The
configuration file is read again on every command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.GetBool("verbose") {
			gin.SetMode(gin.ReleaseMode)
		}

		opts := server.Options{
			SigningSecret: viper.GetString("slack-signing-secret"),
			OAuthToken:    viper.GetString("slack-oauth-token"),
			Deferred:      viper.GetBool("deferred"),
		}
		if err := opts.Validate(); err != nil {
			return &exitError{code: usecase.ExitConfigError, err: err}
		}
		srv := server.New(loadConfig, newRunner(), logger, opts)
		httpServer := &http.Server{
			Addr:              viper.GetString("listen"),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("Server starting on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("slack-signing-secret", "", "Slack signing secret; requests are verified when set")
	flags.String("slack-oauth-token", "", "Slack bot token used for deferred responses")
	flags.Bool("deferred", false, "Acknowledge at once and post the report to the response URL; requires --slack-signing-secret")
	bindFlags(serveCmd, "listen", "slack-signing-secret", "slack-oauth-token", "deferred")
}
