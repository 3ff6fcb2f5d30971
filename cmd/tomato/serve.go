package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomato-app/tomato-support/api"
	"github.com/tomato-app/tomato-support/internal/bootstrap"
	"github.com/tomato-app/tomato-support/websocket"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API",
	Long: `Serve the chat API on PORT.

Routes: POST /chat, GET /health, GET /, GET /__routes and GET /ws.
The seed menu is upserted on start when the menu store is nearly empty.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	if svc.Menu != nil {
		if _, err := svc.Seed(ctx); err != nil {
			log.Error("menu bootstrap failed", err)
		}
	}

	sockets := websocket.NewHandler(svc.Agent, websocket.Options{
		MaxMsgLen:      cfg.MaxMsgLen,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})
	server, err := api.NewServer(svc.Agent, api.Options{
		SharedSecret:    cfg.SharedSecret,
		MaxMsgLen:       cfg.MaxMsgLen,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		DBName:          cfg.DBName,
		DB:              svc.DB(),
		OrderServiceURL: svc.OrderServiceURL(),
		Sockets:         sockets,
		Log:             log,
	})
	if err != nil {
		svc.Close(context.Background())
		return err
	}
	httpServer := server.HTTPServer(cfg.Addr())

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(sctx); serr != nil {
		log.Warnf("http shutdown: %v", serr)
	}
	if serr := sockets.Shutdown(sctx); serr != nil {
		log.Warnf("websocket shutdown: %v", serr)
	}
	server.Close()
	svc.Close(sctx)
	return err
}
