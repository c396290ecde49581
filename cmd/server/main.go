// Package main is the entry point for the Warbler server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (environment and an optional .env file)
//  2. Create the logger and make sure the data directory exists
//  3. Start the application
//
// All actual logic lives in the internal/ packages.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/config"
	"github.com/sakif/warbler/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger, err := cfg.NewLogger(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.GeneratedSecret {
		logger.Warn("SECRET_KEY not set: using a random key, sessions will not survive a restart")
	}

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.DBDriver == config.DriverSQLite {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.WithError(err).WithField("dir", dbDir).Fatal("failed to create database directory")
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"port": cfg.Port}).Fatal("server error")
	}
}
