package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables the reservation service reads and writes.
// users, places and events belong to other services; they are created
// here only so a fresh database can serve reservations.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS places (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		entrance_fee TEXT NULL,
		location TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		capacity INT NOT NULL DEFAULT 0,
		ticket_price DECIMAL(10,2) NULL,
		starts_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		event_id BIGINT UNSIGNED NULL,
		place_id BIGINT UNSIGNED NULL,
		quantity INT NOT NULL,
		visit_date DATETIME NOT NULL,
		total_price DECIMAL(10,2) NOT NULL,
		status ENUM('pending','confirmed','cancelled','completed') NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT chk_reservation_target CHECK ((event_id IS NULL) <> (place_id IS NULL)),
		CONSTRAINT chk_reservation_quantity CHECK (quantity >= 1),
		CONSTRAINT chk_reservation_price CHECK (total_price >= 0),
		KEY idx_reservations_event (event_id, status),
		KEY idx_reservations_place_day (place_id, visit_date),
		KEY idx_reservations_user (user_id),
		KEY idx_reservations_created (created_at, id)
	) ENGINE=InnoDB`,
}

// Migrate creates missing tables.  Existing tables are left untouched.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
