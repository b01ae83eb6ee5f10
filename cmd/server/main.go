// Command server is the entry point for the Vortexx API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vortexx/internal/bootstrap"
	"vortexx/internal/config"
	"vortexx/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{
		InitRepo:     true,
		Tracing:      true,
		ReloadMirror: cfg.MirrorReloadOnStart,
	})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv := server.NewServer(rt.ServerDeps())
	rt.Stories.StartCompactor(ctx, cfg.StoryCompactionInterval())

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := rt.Close(shutdownCtx); err != nil {
			log.Printf("Runtime shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
