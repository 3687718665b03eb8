/**
 * @description
 * This is the main entry point for the contract-service. It initializes configuration,
 * the database pool, optional Redis and RabbitMQ connections, the payment gateway and
 * other collaborators, the lease repair scheduler and the HTTP server, then waits for a
 * shutdown signal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/bootstrap, internal/config.
 * - pkg/rabbitmq: email queue producer.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/api"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/app"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/bootstrap"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/config"
	rmrabbit "github.com/sbalsara05/Burrow-Housing-sub000/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.ClerkJWKSURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"clerk jwks url must be configured\" env=CLERK_JWKS_URL")
	}
	log.Printf("level=info component=bootstrap msg=\"starting contract-service\" port=%s env=%s", cfg.ServerPort, cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := bootstrap.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Email is best-effort: without RabbitMQ the fallback producer drops messages.
	var publisher rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.EmailExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	redisClient := bootstrap.OpenRedis(ctx, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	contractService := bootstrap.NewService(ctx, cfg, dbpool, redisClient, publisher)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewLeaseRepairScheduler(contractService, logger, cfg.LeaseRepairSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"lease repair scheduler start failed\" err=%v", err)
	}

	handlers := api.NewHandlers(contractService, cfg.IsProduction())
	router := api.NewRouter(handlers, api.ClerkAuthMiddleware(cfg.ClerkJWKSURL), cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
