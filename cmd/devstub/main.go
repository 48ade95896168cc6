// Package main runs the in-memory development backend the gateway can be
// pointed at locally.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/internal/devstub"
	"github.com/embedchat/widget-gateway/internal/llm"
	"github.com/embedchat/widget-gateway/pkg/logger"
)

func main() {
	log, err := logger.New(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	// An API key turns on real assistant replies; without one the stub
	// echoes.
	var llmClient llm.Client
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		llmClient, err = llm.NewClient(llm.ProviderAnthropic, key)
		if err != nil {
			log.Warn("failed to create Anthropic client, echoing replies", zap.Error(err))
		}
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, key)
		if err != nil {
			log.Warn("failed to create OpenAI client, echoing replies", zap.Error(err))
		}
	}

	srv := devstub.NewServer(devstub.NewStore(), llmClient, log)

	port := getEnv("PORT", "9090")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("devstub listening", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down devstub")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
