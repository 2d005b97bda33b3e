package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/JRI98/smartchat/server/config"
	"github.com/JRI98/smartchat/server/handlers"
	"github.com/JRI98/smartchat/server/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Could not load config", slog.Any("err", err))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(cfg.LogHandler(os.Stdout)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	natsService, err := services.NewNATSService(ctx, cfg.NATSURL)
	cancel()
	if err != nil {
		slog.Error("Could not initialize NATS service", slog.Any("err", err))
		os.Exit(1)
	}
	defer natsService.Close()

	e := handlers.NewEcho(handlers.NewHandler(natsService), slog.Default())

	go func() {
		slog.Info("Server starting", slog.String("address", cfg.Address()), slog.String("env", cfg.Env))
		if err := e.Start(cfg.Address()); err != nil && err != http.ErrServerClosed {
			slog.Error("Server start error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", slog.Any("err", err))
	} else {
		slog.Info("Server successfully shutdown")
	}
}
