package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the repositories.  Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id              CHAR(36)     NOT NULL,
		name            VARCHAR(200) NOT NULL,
		total_seats     INT UNSIGNED NOT NULL,
		available_seats INT UNSIGNED NOT NULL,
		version         BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at      DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at      DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		KEY idx_events_created (created_at),
		CONSTRAINT chk_events_total CHECK (total_seats >= 1),
		CONSTRAINT chk_events_available CHECK (available_seats <= total_seats)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           CHAR(36)     NOT NULL,
		event_id     CHAR(36)     NOT NULL,
		user_id      VARCHAR(64)  NOT NULL,
		seats        INT UNSIGNED NOT NULL,
		status       ENUM('active','cancelled') NOT NULL DEFAULT 'active',
		created_at   DATETIME(6)  NOT NULL,
		cancelled_at DATETIME(6)  NULL,
		PRIMARY KEY (id),
		KEY idx_bookings_event_status (event_id, status, created_at),
		KEY idx_bookings_user_status (user_id, status, created_at),
		CONSTRAINT fk_bookings_event FOREIGN KEY (event_id) REFERENCES events (id),
		CONSTRAINT chk_bookings_seats CHECK (seats >= 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL,
		username      VARCHAR(30)  NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role          ENUM('ADMIN','USER') NOT NULL DEFAULT 'USER',
		created_at    DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at    DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id    CHAR(36)     NOT NULL,
		token_hash CHAR(64)     NOT NULL,
		expires_at DATETIME(6)  NOT NULL,
		revoked_at DATETIME(6)  NULL,
		created_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_user (user_id),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
