// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, path string, port int) {
	t.Helper()
	cfg := Default()
	cfg.Server.Port = port
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, path, 8090)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, 50*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeTestConfig(t, path, 9191)

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 9191 {
			t.Errorf("reloaded port = %d, want 9191", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after config change")
	}
}

func TestWatcher_IgnoresInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, path, 8090)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, 50*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Broken TOML must not produce a reload.
	if err := os.WriteFile(path, []byte("this is [not toml"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("reload delivered for invalid file: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
		// expected: no reload
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeTestConfig(t, path, 8090)

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, 50*time.Millisecond, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// A different file in the same directory must not trigger a reload.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("reload delivered for unrelated file change")
	case <-time.After(500 * time.Millisecond):
		// expected: no reload
	}
}
