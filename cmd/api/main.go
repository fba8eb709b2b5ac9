package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"crashflight/internal/config"
	"crashflight/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New()
	srv.RegisterFiberRoutes()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("[MAIN] failed to start game components: %v", err)
	}

	go func() {
		addr := ":" + config.Port()
		log.Printf("[MAIN] listening on %s (%s)", addr, config.Role())
		if err := srv.Listen(addr); err != nil {
			log.Fatalf("[MAIN] server error: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	log.Println("[MAIN] shutdown signal received")
	if err := srv.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("[MAIN] http shutdown error: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[MAIN] component shutdown error: %v", err)
	}
	log.Println("[MAIN] bye")
}
