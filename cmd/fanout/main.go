// The fanout service streams run events to WebSocket subscribers. It
// listens on the orchestrator's Redis run-update channel and pushes
// each event to the sockets of the run's owner, so dashboards see
// progress without polling the run API.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/weftlabs/weft/common/bootstrap"
	"github.com/weftlabs/weft/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fanout needs config, logging and Redis; none of the heavier pieces
	components, err := bootstrap.Setup(ctx, "weft-fanout",
		bootstrap.WithoutDatabase(),
		bootstrap.WithoutEventBus(),
		bootstrap.WithoutCache(),
		bootstrap.WithoutTelemetry(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap weft-fanout: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config
	log := components.Logger

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "addr", cfg.RedisAddr(), "error", err)
		os.Exit(1)
	}

	hub := NewHub(log)
	go hub.Run(ctx)

	// Listen on the same channel the orchestrator publishes to
	subscriber := NewSubscriber(redisClient, hub, cfg.Engine.EventChannel, log)
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			log.Error("subscriber failed", "error", err)
			cancel()
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	NewServer(hub, log).Routes(e)

	srv := server.NewStreaming("weft-fanout", fanoutPort(), e, log)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// fanoutPort keeps the default off 8080 so both binaries can share a
// development host without extra env wiring.
func fanoutPort() int {
	if v := os.Getenv("FANOUT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 8084
}
