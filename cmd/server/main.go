package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldmedic/paramedic-assistant/internal/api"
	"github.com/fieldmedic/paramedic-assistant/internal/archive"
	"github.com/fieldmedic/paramedic-assistant/internal/config"
	"github.com/fieldmedic/paramedic-assistant/internal/core"
	"github.com/fieldmedic/paramedic-assistant/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize AI service (transcription + extraction)
	aiService := core.NewAIService()
	defer aiService.Close()

	// Local report archive; the service still runs without it.
	var archiver core.Archiver
	reportArchive, err := archive.Open(config.AppConfig.ArchivePath)
	if err != nil {
		log.Printf("Report archive unavailable, continuing without local backups: %v", err)
	} else {
		defer reportArchive.Close()
		archiver = reportArchive
	}

	// Initialize recording pipeline
	pipeline := core.NewPipeline(aiService, aiService, dbStore, archiver)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(pipeline, dbStore)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,  // Audio uploads can be large
		WriteTimeout: 120 * time.Second, // Two chained AI calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active pipeline runs time to finish their store writes.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
