// zihtchat - a Groq chat backend for the browser client.
//
// Copyright (c) 2025 Ziht Labs
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/zihtlabs/zihtchat/internal/chat"
	"github.com/zihtlabs/zihtchat/internal/config"
	"github.com/zihtlabs/zihtchat/internal/groq"
	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/profile"
	"github.com/zihtlabs/zihtchat/internal/server"
	"github.com/zihtlabs/zihtchat/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.toml (default ~/.zihtchat/config.toml)")
		port        = flag.Int("port", 0, "listen port override")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("zihtchat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	// .env is a development convenience; absence is normal.
	_ = godotenv.Load()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer backend.Close()

	st := store.New(backend)
	profiles := profile.NewService(backend)
	client := groq.NewClientWithBaseURL(cfg.Groq.BaseURL)
	orch := chat.NewOrchestrator(st, profiles, client)

	srv := server.New(cfg, server.Deps{
		Store:        st,
		Profiles:     profiles,
		Orchestrator: orch,
		Groq:         client,
		KV:           backend,
	})

	watcher, err := config.NewWatcher(path, func(updated *config.Config) {
		log.Printf("configuration reloaded from %s", path)
		srv.UpdateConfig(updated)
	})
	if err != nil {
		log.Printf("warning: config watching unavailable: %v", err)
	} else if err := watcher.Watch(); err != nil {
		log.Printf("warning: config watching unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("warning: shutdown incomplete: %v", err)
		}
	}
}

// loadConfig loads the configuration and returns it along with the path
// it was (or would be) read from, for the file watcher.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// openBackend constructs the configured key-value backend, resolving
// default paths under ~/.zihtchat.
func openBackend(cfg *config.Config) (kv.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return kv.NewMemory(), nil

	case "sqlite":
		path := cfg.Storage.SQLitePath
		if path == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "zihtchat.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		return kv.NewSQLite(path)

	default: // "file", validated upstream
		if cfg.Storage.Dir != "" {
			return kv.NewFileWithDir(cfg.Storage.Dir)
		}
		return kv.NewFile()
	}
}

// printBanner writes the startup summary.
func printBanner(cfg *config.Config) {
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("%s %s\n", boldCyan("zihtchat"), Version)
	fmt.Printf("  listening  %s\n", green(fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)))
	fmt.Printf("  storage    %s\n", cfg.Storage.Backend)
	fmt.Printf("  model      %s\n", cfg.Generation.Model)
}
