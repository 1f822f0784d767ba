package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/converter"
	"github.com/toricodesthings/document-conversion-service/internal/server"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := bootstrap(accel.HostProbe)
	if err != nil {
		return err
	}
	defer env.log.Sync() //nolint:errcheck

	cfg := env.cfg
	if port != "" {
		cfg.Port = port
	}

	eng, err := buildEngine(cfg, env.log)
	if err != nil {
		return err
	}
	svc := converter.New(eng, env.preset, env.device, cfg.ConvertTimeout, env.log)
	srv := server.New(cfg, svc, accel.HostProbe, env.log)

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.RunCleanup(ctx)

	env.log.Info("listening",
		zap.String("addr", httpSrv.Addr),
		zap.String("engine", eng.Name()),
		zap.String("preset", env.preset.Name),
		zap.Stringer("device", env.device),
		zap.Int64("max_concurrent", cfg.MaxConcurrentRequests),
	)

	errc := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	env.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
