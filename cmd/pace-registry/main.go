// main is the entry point of the PACE student registry.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger
//  3. Install the OpenTelemetry meter provider
//  4. Open the persistence log and replay it into the record store
//  5. Register all HTTP routes
//  6. Start the HTTP server in a separate goroutine
//  7. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  8. Gracefully shut down: finish in-flight requests, flush metrics,
//     close the log, exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/pace-registry --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/pace-registry
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aanand-mishra/pace-registry/internal/config"
	"github.com/aanand-mishra/pace-registry/internal/http/handlers/student"
	"github.com/aanand-mishra/pace-registry/internal/metrics"
	"github.com/aanand-mishra/pace-registry/internal/registration"
	"github.com/aanand-mishra/pace-registry/internal/search"
	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/storage/flatfile"
	"github.com/aanand-mishra/pace-registry/internal/storage/sqlite"
	"github.com/aanand-mishra/pace-registry/internal/store"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad exits the process if the config is missing or invalid.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// SetDefault makes the package-level slog functions used by handlers
	// and storage write through the same handler.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting pace-registry",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	// ── 3. Initialise Metrics ─────────────────────────────────────────────
	// Setup installs the global meter provider; metrics.New below creates
	// its instruments from it.
	shutdownMetrics, err := metrics.Setup(cfg.Metrics.Exporter, cfg.Metrics.Interval, os.Stdout)
	if err != nil {
		log.Error("failed to initialise metrics",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ── 4. Initialise Storage and Replay ──────────────────────────────────
	// The log is the durable source of truth. store.Open reads it once,
	// in file order, to rebuild the in-memory record store.
	recordLog, err := openLog(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	records, err := store.Open(recordLog)
	if err != nil {
		log.Error("failed to replay storage",
			slog.String("path", cfg.StoragePath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storage initialised",
		slog.String("driver", cfg.StorageDriver),
		slog.String("path", cfg.StoragePath),
		slog.Int("records", records.Len()))

	rec := metrics.New()
	registrations := registration.NewService(records, rec)
	searches := search.NewService(records, rec)

	// ── 5. Register HTTP Routes ───────────────────────────────────────────
	// Route table:
	//   GET  /               → registration page
	//   POST /api/register   → register a student
	//   GET  /api/search     → search by name or skill
	router := http.NewServeMux()

	router.HandleFunc("GET /", student.Index(cfg.StaticPath))
	router.HandleFunc("POST /api/register", student.Register(registrations))
	router.HandleFunc("GET /api/search", student.Search(searches))

	// Recover wraps the whole router so a panic in any handler becomes a
	// 500 response instead of a crashed process.
	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: student.Recover(router),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	// net/http serves every request on its own goroutine, so registrations
	// and searches run in parallel; the record store serialises admissions.
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
	}

	// Flush the last metrics interval.
	if err := shutdownMetrics(ctx); err != nil {
		log.Error("failed to flush metrics",
			slog.String("error", err.Error()))
	}

	// The log is closed only after in-flight registrations finished.
	if err := recordLog.Close(); err != nil {
		log.Error("failed to close storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// openLog returns the persistence log selected by cfg.StorageDriver.
func openLog(cfg *config.Config) (storage.Log, error) {
	switch cfg.StorageDriver {
	case config.DriverFile:
		return flatfile.New(cfg.StoragePath), nil
	case config.DriverSQLite:
		return sqlite.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
