package database

import (
	"context"
	"database/sql"
	"fmt"
)

const createFlightsTableSQL = `
CREATE TABLE IF NOT EXISTS flights (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    flight_number VARCHAR(16) NOT NULL,
    airline VARCHAR(100) NOT NULL DEFAULT '',
    aircraft_type VARCHAR(100) NOT NULL DEFAULT '',
    departure_city VARCHAR(100) NOT NULL,
    arrival_city VARCHAR(100) NOT NULL,
    departure_time DATETIME NOT NULL,
    arrival_time DATETIME NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uq_flights_number (flight_number),
    KEY idx_flights_route (departure_city, arrival_city, departure_time),
    KEY idx_flights_departure (departure_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const createFlightSeatClassesTableSQL = `
CREATE TABLE IF NOT EXISTS flight_seat_classes (
    flight_id BIGINT UNSIGNED NOT NULL,
    seat_class ENUM('economy','business','first') NOT NULL,
    capacity INT UNSIGNED NOT NULL,
    reserved INT UNSIGNED NOT NULL DEFAULT 0,
    price_cents INT UNSIGNED NOT NULL,
    PRIMARY KEY (flight_id, seat_class),
    CONSTRAINT chk_seat_classes_reserved CHECK (reserved <= capacity),
    CONSTRAINT fk_seat_classes_flight FOREIGN KEY (flight_id) REFERENCES flights (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const createReservationsTableSQL = `
CREATE TABLE IF NOT EXISTS reservations (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    reference CHAR(36) NOT NULL,
    flight_id BIGINT UNSIGNED NOT NULL,
    holder_id BIGINT UNSIGNED NOT NULL,
    seat_class ENUM('economy','business','first') NOT NULL,
    seat_count INT UNSIGNED NOT NULL,
    passenger_name VARCHAR(100) NOT NULL DEFAULT '',
    passenger_legal_id VARCHAR(32) NOT NULL DEFAULT '',
    passenger_phone VARCHAR(32) NOT NULL DEFAULT '',
    status ENUM('pending','confirmed','cancelled') NOT NULL,
    total_amount_cents BIGINT UNSIGNED NOT NULL,
    created_at DATETIME(6) NOT NULL,
    cancelled_at DATETIME(6) NULL,
    UNIQUE KEY uq_reservations_reference (reference),
    KEY idx_reservations_flight (flight_id, status, created_at),
    KEY idx_reservations_holder (holder_id, created_at),
    CONSTRAINT chk_reservations_seat_count CHECK (seat_count >= 1),
    CONSTRAINT fk_reservations_flight FOREIGN KEY (flight_id) REFERENCES flights (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate creates the schema when it does not exist yet.  Statements are
// idempotent so it runs on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"flights", createFlightsTableSQL},
		{"flight_seat_classes", createFlightSeatClassesTableSQL},
		{"reservations", createReservationsTableSQL},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	return nil
}
