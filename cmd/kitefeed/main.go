package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/application/service"
	"kitefeed/internal/application/usecase/stream"
	"kitefeed/internal/domain/model"
	"kitefeed/internal/infrastructure/config"
	"kitefeed/internal/infrastructure/kite"
	"kitefeed/internal/infrastructure/logger"
	"kitefeed/internal/infrastructure/storage/composite"
	"kitefeed/internal/infrastructure/storage/postgres"
	"kitefeed/internal/infrastructure/storage/redis"
	"kitefeed/internal/infrastructure/storage/sqlite"
	"kitefeed/internal/interfaces/web"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := buildRepo(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage init failed")
	}
	defer repo.Close()

	client := kite.NewClient(cfg.Upstream.APIURL, cfg.Upstream.LoginURL, cfg.Upstream.APIVersion)
	manager := service.NewSessionManager(client)

	streamCfg := streamConfig(cfg)
	// One upstream tick connection per distinct credential, shared by all
	// sessions holding it.
	broker := stream.NewFeedBroker(func() port.TickFeed {
		return kite.NewTickerFeed(cfg.Upstream.WsURL, cfg.Upstream.Reconnect)
	})
	factory := func(id string, cred model.Credential, sink port.EventSink) *stream.Session {
		return stream.NewSession(id, cred, streamCfg, broker, client, client, repo, sink)
	}

	server := web.NewServer(cfg.Server.Addr, cfg.Server.StaticDir, manager, factory)
	httpSrv := &http.Server{Addr: server.Addr(), Handler: server.Handler()}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).
			Int("basis", len(cfg.Watch.Basis)).Int("pairs", len(cfg.Watch.Pairs)).
			Msg("kitefeed started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server exited")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("kitefeed stopped")
}

func streamConfig(cfg *config.Config) stream.Config {
	basis := make([]stream.BasisWatch, 0, len(cfg.Watch.Basis))
	for _, b := range cfg.Watch.Basis {
		basis = append(basis, stream.BasisWatch{
			Name:         b.Name,
			SpotExchange: b.SpotExchange,
			SpotSymbol:   b.SpotSymbol,
		})
	}
	pairs := make([]model.VenuePair, 0, len(cfg.Watch.Pairs))
	for _, p := range cfg.Watch.Pairs {
		pairs = append(pairs, model.VenuePair{
			Symbol: p.Symbol,
			VenueA: p.VenueA,
			VenueB: p.VenueB,
		})
	}
	return stream.Config{
		Mode:         cfg.Upstream.Mode,
		PollInterval: time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		Basis:        basis,
		Pairs:        pairs,
	}
}

func buildRepo(cfg *config.Config) (port.Repository, error) {
	newRedis := func() port.Repository {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Storage.RedisAddr})
		return redis.New(rdb, cfg.Storage.RedisPrefix, time.Duration(cfg.Storage.RedisTTLSec)*time.Second)
	}

	switch cfg.Storage.Driver {
	case "none":
		return stream.NewNoopRepo(), nil
	case "sqlite":
		return sqlite.New(cfg.Storage.SQLitePath)
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	case "redis":
		return newRedis(), nil
	case "all":
		var repos []port.Repository
		if cfg.Storage.SQLitePath != "" {
			r, err := sqlite.New(cfg.Storage.SQLitePath)
			if err != nil {
				return nil, err
			}
			repos = append(repos, r)
		}
		if cfg.Storage.PostgresDSN != "" {
			r, err := postgres.New(cfg.Storage.PostgresDSN)
			if err != nil {
				return nil, err
			}
			repos = append(repos, r)
		}
		if cfg.Storage.RedisAddr != "" {
			repos = append(repos, newRedis())
		}
		if len(repos) == 0 {
			return stream.NewNoopRepo(), nil
		}
		return composite.New(repos...), nil
	}
	return stream.NewNoopRepo(), nil
}
