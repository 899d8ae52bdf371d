package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/danmuck/autowire/internal/config"
	"github.com/danmuck/autowire/internal/dispatch"
	"github.com/danmuck/autowire/internal/logging"
	"github.com/danmuck/autowire/internal/observability"
	"github.com/danmuck/autowire/internal/presence"
	"github.com/danmuck/autowire/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config; defaults apply when empty")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("autowire")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	}

	var dispatcher dispatch.Dispatcher = dispatch.LogDispatcher{Log: logger}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("autowire"))
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect failed")
		}
		defer nc.Close()
		dispatcher = dispatch.NewNATSDispatcher(nc, cfg.NATS.SubjectPrefix)
		logger.Info().Str("url", cfg.NATS.URL).Msg("dispatching frames over nats")
	}

	var mirror presence.Mirror
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		mirror = presence.NewRedisMirror(client, cfg.RedisSessionTTL())
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("mirroring presence to redis")
	}

	server, err := transport.NewServer(cfg, dispatcher, mirror, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server construction failed")
	}
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server start failed")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")
	server.Stop()
}
