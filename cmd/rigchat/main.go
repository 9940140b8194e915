// rigchat - a local AI chat server with streaming, tools, and a workspace.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/server"
	"github.com/jeranaias/rigchat/internal/store"
	"github.com/jeranaias/rigchat/internal/tools"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.rigchat/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rigchat %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("FATAL | %v", err)
	}
}

func run(configPath string) error {
	// Configuration
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.SetGlobal(cfg)

	// Workspace file store
	files, err := store.Open(store.Config{
		DBPath:        cfg.Files.DBPath,
		MaxFileBytes:  cfg.Files.MaxFileBytes,
		MaxTotalBytes: cfg.Files.MaxTotalBytes,
	})
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	defer files.Close()

	// Tool clients, shared by the registry and the direct API endpoints
	search := tools.NewSearchClient(
		cfg.Search.MaxResults,
		time.Duration(cfg.Search.FetchTimeoutSecs)*time.Second,
		cfg.Search.UserAgent,
	)
	fetcher := tools.NewFetcher(
		time.Duration(cfg.Search.FetchTimeoutSecs)*time.Second,
		cfg.Search.MaxFetchBytes,
		cfg.Search.UserAgent,
	)
	fetcher.AllowPrivateHosts = cfg.Search.AllowPrivateHosts

	registry, err := tools.DefaultRegistry(search, fetcher, files)
	if err != nil {
		return err
	}
	executor := tools.NewExecutor(registry,
		time.Duration(cfg.Chat.ToolTimeoutSecs)*time.Second,
		cfg.Chat.MaxToolOutputChars,
	)

	// Inference backend
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		DefaultModel: cfg.Ollama.Model,
	})
	if err := client.CheckRunning(context.Background()); err != nil {
		// Not fatal: the server starts degraded and recovers when Ollama
		// comes up.
		log.Printf("OLLAMA_UNAVAILABLE | url=%s error=%v", cfg.Ollama.URL, err)
	}

	srv := server.New(cfg, client, executor, search, fetcher, files)

	// Hot reload on config file changes
	if watchPath := resolveConfigPath(configPath); watchPath != "" {
		watcher, err := config.NewWatcher(watchPath, 0, func(next *config.Config) {
			log.Printf("CONFIG_RELOADED | path=%s", watchPath)
			config.SetGlobal(next)
			srv.SetConfig(next)
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else if err := watcher.Watch(); err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Run until interrupted
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("SIGNAL_RECEIVED | signal=%v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveConfigPath returns the config file to watch, or "" when none
// exists yet.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p, err := config.ConfigPathTOML(); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
