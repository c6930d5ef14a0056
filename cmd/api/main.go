package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ridedispatch/internal/api"
	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Log)
	log := logging.Component("main")
	metrics.RegisterDefault()

	mem := store.NewMemory()
	if err := store.SeedDemo(context.Background(), mem); err != nil {
		log.Fatal().Err(err).Msg("seed demo data")
	}

	provider, err := geo.NewORSClient(cfg.ORS)
	if err != nil {
		log.Fatal().Err(err).Msg("init routing provider")
	}

	s := api.NewServer(cfg, mem, provider)
	s.NewWebhookWorker().Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}
