/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recovery-day conversion engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build the engine service and API handler
  4. Start the usage scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: recovery.db)
                    Use ":memory:" for in-memory database
  -usage-interval   How often the scheduler checks for expired grants
                    (default: 1h, 0 disables the scheduler)
  -daily-hours      Store a conversion policy: working hours per day
                    (0 leaves the stored/default policy untouched)
  -conversion-rate  Conversion rate paired with -daily-hours (default: 1)
  -seed             Insert a demo employee with overtime to convert

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/recovery.db"

  # Run with in-memory database, demo data, no scheduler
  ./server -db=":memory:" -seed -usage-interval=0

  # Override the tenant's conversion policy at startup
  ./server -daily-hours=8 -conversion-rate=1

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recovery-engine/api"
	"github.com/warp/recovery-engine/recovery"
	"github.com/warp/recovery-engine/store/sqlite"
)

const defaultTenant = "default"

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "recovery.db", "SQLite database path")
	usageInterval := flag.Duration("usage-interval", time.Hour, "usage scheduler check interval (0 disables)")
	dailyHours := flag.Float64("daily-hours", 0, "store a conversion policy with this many working hours per day (0 keeps current)")
	conversionRate := flag.Float64("conversion-rate", 1, "conversion rate stored alongside -daily-hours")
	seed := flag.Bool("seed", false, "insert demo data (employee emp-demo with convertible overtime)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if *dailyHours > 0 {
		policy := recovery.ConversionPolicy{
			DailyWorkingHours: decimal.NewFromFloat(*dailyHours),
			ConversionRate:    decimal.NewFromFloat(*conversionRate),
		}
		if err := store.SaveConversionPolicy(ctx, defaultTenant, policy); err != nil {
			log.Fatalf("Failed to store conversion policy: %v", err)
		}
		log.Printf("Conversion policy set: %vh/day at rate %v", *dailyHours, *conversionRate)
	}
	if *seed {
		if err := seedDemoData(ctx, store); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		log.Println("Seeded demo employee emp-demo")
	}

	// Build the engine and handler
	svc := recovery.NewService(store)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler)

	// Background usage scheduler
	scheduler := api.NewUsageScheduler(store)
	if *usageInterval > 0 {
		scheduler.CheckInterval = *usageInterval
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedDemoData inserts one employee with three weeks of approved overtime so
// the API can be exercised immediately after startup.
func seedDemoData(ctx context.Context, store *sqlite.Store) error {
	if err := store.SaveEmployee(ctx, recovery.Employee{
		ID:       "emp-demo",
		TenantID: defaultTenant,
		Name:     "Demo Employee",
	}); err != nil {
		return err
	}

	today := recovery.Today()
	for i, hours := range []float64{6, 4, 8} {
		tx := recovery.OvertimeTransaction{
			ID:         fmt.Sprintf("ot-demo-%d", i+1),
			TenantID:   defaultTenant,
			EmployeeID: "emp-demo",
			Date:       today.AddDays(-7 * (3 - i)),
			RawHours:   decimal.NewFromFloat(hours),
			Status:     recovery.OvertimeApproved,
		}
		if err := store.SaveOvertime(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}
