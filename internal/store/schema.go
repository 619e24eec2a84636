package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		venue TEXT NOT NULL DEFAULT '',
		start_time BIGINT NOT NULL DEFAULT 0,
		total_seats BIGINT NOT NULL DEFAULT 0,
		available_seats BIGINT NOT NULL DEFAULT 0,
		available_tickets BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'published'
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		section TEXT NOT NULL DEFAULT '',
		row_label TEXT NOT NULL DEFAULT '',
		number BIGINT NOT NULL DEFAULT 0,
		price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'available',
		reservation_id TEXT NOT NULL DEFAULT '',
		sold_via TEXT NOT NULL DEFAULT '',
		updated BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seats_event ON seats (event_id, status)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		holder TEXT NOT NULL,
		seat_ids TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_ref TEXT NOT NULL DEFAULT '',
		total_price TEXT NOT NULL DEFAULT '0',
		expires_at BIGINT NOT NULL,
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations (status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id TEXT PRIMARY KEY,
		owner_type TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		subtotal TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_active_owner ON carts (owner_type, owner_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		ticket_type TEXT NOT NULL DEFAULT '',
		quantity BIGINT NOT NULL,
		unit_price TEXT NOT NULL,
		seat_ids TEXT NOT NULL DEFAULT '[]',
		reservation_id TEXT NOT NULL DEFAULT '',
		total_price TEXT NOT NULL,
		created BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cart_items_cart ON cart_items (cart_id)`,
	`CREATE TABLE IF NOT EXISTS checkout_sessions (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		guest_email TEXT NOT NULL DEFAULT '',
		guest_first_name TEXT NOT NULL DEFAULT '',
		guest_last_name TEXT NOT NULL DEFAULT '',
		guest_phone TEXT NOT NULL DEFAULT '',
		billing TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		subtotal TEXT NOT NULL,
		discount_amount TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		expires_at BIGINT NOT NULL,
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkout_sessions_expiry ON checkout_sessions (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_checkout_sessions_cart ON checkout_sessions (cart_id, status)`,
	`CREATE TABLE IF NOT EXISTS checkout_items (
		id TEXT PRIMARY KEY,
		checkout_id TEXT NOT NULL,
		cart_item_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		ticket_type TEXT NOT NULL DEFAULT '',
		quantity BIGINT NOT NULL,
		unit_price TEXT NOT NULL,
		seat_ids TEXT NOT NULL DEFAULT '[]',
		reservation_id TEXT NOT NULL DEFAULT '',
		total_price TEXT NOT NULL,
		position BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkout_items_checkout ON checkout_items (checkout_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		checkout_id TEXT NOT NULL UNIQUE,
		cart_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		guest_email TEXT NOT NULL DEFAULT '',
		confirmation_code TEXT NOT NULL DEFAULT '',
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_guest ON orders (guest_email, confirmation_code)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		ticket_type TEXT NOT NULL DEFAULT '',
		seat_id TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		status TEXT NOT NULL,
		position BIGINT NOT NULL DEFAULT 0,
		created BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_order ON tickets (order_id)`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		checkout_id TEXT NOT NULL DEFAULT '',
		reservation_id TEXT NOT NULL DEFAULT '',
		holder TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		total TEXT NOT NULL,
		method TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		provider_ref TEXT NOT NULL DEFAULT '',
		review_required BIGINT NOT NULL DEFAULT 0,
		fraud_check_id TEXT NOT NULL DEFAULT '',
		spent_by TEXT NOT NULL DEFAULT '',
		expires_at BIGINT NOT NULL,
		completed_at BIGINT NOT NULL DEFAULT 0,
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_holder ON payment_transactions (holder, status, completed_at)`,
	`CREATE TABLE IF NOT EXISTS fraud_checks (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		holder TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		out_of_band BIGINT NOT NULL,
		recent_count BIGINT NOT NULL,
		high_value BIGINT NOT NULL,
		device_ok BIGINT NOT NULL,
		geo_ok BIGINT NOT NULL,
		score BIGINT NOT NULL,
		legitimate BIGINT NOT NULL,
		created BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fraud_checks_payment ON fraud_checks (payment_id)`,
	`CREATE TABLE IF NOT EXISTS organizer_earnings (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created BIGINT NOT NULL
	)`,
}

// Migrate creates every table and index that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
