package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/spf13/cobra"

	"github.com/pelusa-v/pelusa-chat/internal/chat"
	"github.com/pelusa-v/pelusa-chat/internal/config"
	"github.com/pelusa-v/pelusa-chat/internal/handlers"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/logger"
)

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, closeRegistry, err := openRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	accounts := identity.NewStoreAccounts(st)
	conns := chat.NewManager(cfg.NodeID)
	locator := chat.NewLocator(reg, conns, log)
	dir := chat.NewDirectory(st, st, log)
	pipeline := chat.NewPipeline(dir, st, st, locator, accounts, chat.PipelineConfig{
		AckTimeout: cfg.AckTimeout,
		PageSize:   cfg.HistoryPageSize,
	}, log)
	gw := chat.NewGateway(conns, verifier, accounts, reg, locator, pipeline, chat.GatewayConfig{}, log)

	app := fiber.New(fiber.Config{
		AppName:               "pelusa-chat",
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	handlers.New(gw, pipeline, verifier, cfg.NotifyToken, log).Register(app)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("node", cfg.NodeID).
			Str("store", cfg.StoreDriver).
			Str("presence", cfg.PresenceDriver).
			Msg("listening")
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	conns.CloseAll()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	pipeline.Wait()
	log.Info().Msg("stopped")
	return nil
}
