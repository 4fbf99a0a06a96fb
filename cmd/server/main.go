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

	"github.com/commitdeck/commitdeck/internal/api"
	"github.com/commitdeck/commitdeck/internal/config"
	"github.com/commitdeck/commitdeck/internal/core"
	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize user store
	users, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer users.Close()

	// Initialize card store: Redis when configured, in-process otherwise
	var cards store.CardStore
	if config.AppConfig.RedisAddr != "" {
		cards, err = store.NewRedisCardStore(store.RedisConfig{Addr: config.AppConfig.RedisAddr})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
	} else {
		log.Println("REDIS_ADDR not set, using in-memory card store")
		cards = store.NewMemoryCardStore()
	}

	// Initialize the AI generation backend
	var generator llm.Generator
	switch config.AppConfig.LLMProvider {
	case "gemini":
		gemini, err := llm.NewGeminiGenerator(context.Background(), config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to create Gemini generator: %v", err)
		}
		defer gemini.Close()
		generator = gemini
	default:
		generator = llm.NewOpenAIGenerator(config.AppConfig.OpenAIBase, config.AppConfig.OpenAIAPIKey, config.AppConfig.OpenAIModel)
	}

	// Commit source clients are built per request with the caller's token
	newSource := func(token string) core.CommitSource {
		return github.NewClient(config.AppConfig.GitHubAPIBase, token, config.AppConfig.FetchTimeout)
	}

	pipeline := core.NewPipeline(cards, generator, config.AppConfig.Timezone)
	regen := core.NewRegenerator(users, cards, generator, config.AppConfig.Timezone)

	demoRepo := github.Repo{FullName: config.AppConfig.DemoRepo, Branch: config.AppConfig.DemoBranch}
	apiHandler := api.NewAPIHandler(users, pipeline, regen, newSource, demoRepo, config.AppConfig.GitHubToken)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // three windows of AI calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish before forcing the exit.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
