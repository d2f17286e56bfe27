// Command schedule-loader registers the flights in a YAML schedule file with
// the reservation database.  Flights that are already scheduled are
// skipped, so the same file can be loaded repeatedly.
//
//	schedule-loader --file schedules/winter.yaml
//	schedule-loader --file schedules/winter.yaml --dry-run
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/flight-seat-reservation/internal/database"
	"github.com/iliyamo/flight-seat-reservation/internal/logger"
	"github.com/iliyamo/flight-seat-reservation/internal/repository"
	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
	"github.com/iliyamo/flight-seat-reservation/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	file := flag.StringP("file", "f", os.Getenv("SCHEDULE_FILE"), "schedule YAML file to load")
	dryRun := flag.Bool("dry-run", false, "parse and validate the file without writing to the database")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	dbHost := flag.String("db-host", os.Getenv("DB_HOST"), "MySQL host")
	dbPort := flag.String("db-port", envOr("DB_PORT", "3306"), "MySQL port")
	dbUser := flag.String("db-user", os.Getenv("DB_USER"), "MySQL user")
	dbName := flag.String("db-name", os.Getenv("DB_NAME"), "MySQL database")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: schedule-loader --file <schedule.yaml> [--dry-run]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logg, closeLog, err := logger.New(logger.Options{Level: *logLevel, Format: "text"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog.Close()

	entries, err := schedule.Load(*file)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *dryRun {
		for _, e := range entries {
			f, _ := e.Flight() // Load has already validated every entry
			fmt.Printf("%-8s %s -> %s  %s  classes=%d\n", f.FlightNumber, f.DepartureCity, f.ArrivalCity,
				f.DepartureTime.Format(time.RFC3339), len(f.Classes))
		}
		fmt.Printf("%d flights parsed, nothing written\n", len(entries))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.Open(database.Options{
		User: *dbUser,
		Pass: os.Getenv("DB_PASS"),
		Host: *dbHost,
		Port: *dbPort,
		Name: *dbName,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("%v", err)
	}

	engine := reservation.NewEngine(repository.NewMySQLStore(db), reservation.DefaultPolicy(), reservation.WithLogger(logg))
	res, err := schedule.Apply(ctx, engine, entries, logg)
	fmt.Printf("created %d, skipped %d\n", len(res.Created), len(res.Skipped))
	if err != nil {
		logg.Error("schedule load stopped", "error", err)
		_ = db.Close()
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
