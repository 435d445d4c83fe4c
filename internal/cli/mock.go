package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/logging"
	"github.com/wesleyorama2/merchload/internal/mockshop"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve an in-memory merch shop for local runs",
	Long: `Serve an in-memory implementation of the merch shop API.

  merchload mock --listen :8080 --latency 5ms
  merchload run --base-url http://localhost:8080 --duration 30s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		latency, _ := cmd.Flags().GetDuration("latency")
		failureRatio, _ := cmd.Flags().GetFloat64("failure-ratio")
		lenient, _ := cmd.Flags().GetBool("lenient")
		initialCoins, _ := cmd.Flags().GetInt64("initial-coins")
		logLevel, _ := cmd.Flags().GetString("log-level")

		if failureRatio < 0 || failureRatio > 1 {
			return fmt.Errorf("--failure-ratio must be between 0 and 1")
		}

		logger, err := logging.New(logging.Options{Level: logLevel, Output: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer logger.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ln, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", listen, err)
		}

		shop := mockshop.New(mockshop.Options{
			InitialCoins: initialCoins,
			Latency:      latency,
			FailureRatio: failureRatio,
			Lenient:      lenient,
			Logger:       logger.Logger,
		})
		return serveMock(ctx, ln, shop, logger.Logger)
	},
}

// serveMock serves handler on ln until ctx is cancelled, then shuts the
// server down gracefully.
func serveMock(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("mock shop listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock shop shutdown: %w", err)
	}
	logger.Info("mock shop stopped")
	return nil
}

func init() {
	mockCmd.Flags().String("listen", ":8080", "Listen address")
	mockCmd.Flags().Duration("latency", 0, "Latency added to every request")
	mockCmd.Flags().Float64("failure-ratio", 0, "Fraction of requests answered with 500")
	mockCmd.Flags().Bool("lenient", false, "Accept unknown recipients and skip balance checks")
	mockCmd.Flags().Int64("initial-coins", 1000, "Balance of newly registered users")
	mockCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
}
