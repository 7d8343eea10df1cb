/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the OPD token queue server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize the logger
  3. Initialize the SQLite store (doctors, tokens, ledger, counter)
  4. Wire the admission controller and lifecycle manager
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: opd.db)
           Use ":memory:" for an in-memory database
  -pretty  Human-readable console logs instead of JSON

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/opd.db"
  ./server -db=":memory:" -pretty
  ./server -port=3000
*/
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

	"github.com/rs/zerolog"
	"github.com/warp/opd-queue/api"
	"github.com/warp/opd-queue/queue"
	"github.com/warp/opd-queue/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "opd.db", "SQLite database path")
	pretty := flag.Bool("pretty", false, "human-readable console logs")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "opd-queue").Logger()
	if *pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// The SQLite store backs every storage interface: doctor registry,
	// token store, slot ledger and the daily token counter.
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	admissions := queue.NewAdmissionController(store, store, store, store, logger)
	lifecycle := queue.NewLifecycleManager(store, store, logger)

	handler := api.NewHandler(store, store, admissions, lifecycle, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
