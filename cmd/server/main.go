package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mboyle85/grabdeck/internal/alerts"
	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/middleware"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/routes"
	"github.com/mboyle85/grabdeck/internal/server"
	"github.com/mboyle85/grabdeck/internal/task"
	"github.com/mboyle85/grabdeck/internal/worker"
)

func main() {
	godotenv.Load()
	config.Load()

	bus := progress.NewBus()
	handle := task.NewHandle()
	runner := task.NewRunner(bus, handle)

	gofile := hosts.NewGofile(config.GofileToken)
	uploaders := []hosts.Uploader{
		hosts.NewPixeldrain(config.PixeldrainKey),
		hosts.NewFourStream(config.FourStreamKey),
		gofile,
	}
	history := hosts.NewHistory(config.HistoryFile)
	workers := worker.New(uploaders, history)

	handlers := routes.NewHandlers(bus, runner, handle, workers, gofile, history)

	srv := server.New(handlers)
	middleware.StartRateLimitCleanup()

	server.PrintBanner()
	log.Printf("Download dir: %s", config.DownloadDir)
	log.Printf("Listening on :%s (%s)", config.Port, config.EnvMode)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()
	alerts.ServerStarted()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	alerts.ServerStopping()

	// Kill any in-flight task so its subprocess does not outlive us.
	if err := handle.Stop(); err == nil {
		log.Println("Stopped active task.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped.")
}
