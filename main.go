package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athapong/docfuse/pkg/config"
	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/athapong/docfuse/prompts"
	"github.com/athapong/docfuse/services"
	"github.com/athapong/docfuse/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	configFile := flag.String("config", "", "Path to YAML configuration file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on; empty disables it")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol
	logger.SetOutput(os.Stderr)

	corpus, err := services.OpenCorpus(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open corpus: %v", err)
	}
	defer corpus.Close()

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	mcpServer := server.NewMCPServer(
		"docfuse",
		"1.0.0",
		server.WithLogging(),
		server.WithPromptCapabilities(true),
	)

	tools.RegisterCorpusTools(mcpServer, corpus)
	tools.RegisterFetchTool(mcpServer, corpus)
	prompts.RegisterRelationPrompts(mcpServer)

	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		serveSSE(mcpServer, logger, *sseAddr, *sseBasePath)
		return
	}
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Errorf("Server error: %v", err)
	}
}

func serveMetrics(logger *logrus.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("Metrics server stopped: %v", err)
	}
}

func serveSSE(mcpServer *server.MCPServer, logger *logrus.Logger, addr, basePath string) {
	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBasePath(basePath),
	)

	go func() {
		logger.Infof("Starting SSE server on %s with base path %s", addr, basePath)
		if err := sseServer.Start(addr); err != nil {
			logger.Errorf("SSE server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sseServer.Shutdown(ctx); err != nil {
		logger.Errorf("Error during SSE server shutdown: %v", err)
	}
	logger.Info("SSE server shutdown complete")
}
