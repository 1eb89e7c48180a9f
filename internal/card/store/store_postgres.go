package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardledger/internal/card"
	"cardledger/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists the registry in PostgreSQL for deployments that
// outlive a single process. The one-card-per-address invariant is backed by
// a unique constraint on the owner column, and compound transitions run in a
// single transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the registry tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS cards (
            id           BIGSERIAL PRIMARY KEY,
            name         TEXT NOT NULL,
            title        TEXT NOT NULL DEFAULT '',
            company      TEXT NOT NULL DEFAULT '',
            contact_info TEXT NOT NULL DEFAULT '',
            metadata_uri TEXT NOT NULL DEFAULT '',
            owner        TEXT NOT NULL UNIQUE,
            minted_at    TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS card_rentals (
            card_id    BIGINT PRIMARY KEY REFERENCES cards(id),
            renter     TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS received_cards (
            seq     BIGSERIAL PRIMARY KEY,
            address TEXT NOT NULL,
            card_id BIGINT NOT NULL REFERENCES cards(id)
        );
        CREATE INDEX IF NOT EXISTS received_cards_address_idx ON received_cards(address);
        CREATE TABLE IF NOT EXISTS card_movers (
            address TEXT PRIMARY KEY,
            allowed BOOLEAN NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCard(ctx context.Context, c card.Card, owner string) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
        INSERT INTO cards (name, title, company, contact_info, metadata_uri, owner, minted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `, c.Name, c.Title, c.Company, c.ContactInfo, c.MetadataURI, owner, c.MintedAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("address %s already owns a card: %w", owner, sentinel.ErrConflict)
		}
		return 0, fmt.Errorf("create card: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, id uint64) (card.Card, error) {
	var c card.Card
	err := s.db.QueryRow(ctx, `
        SELECT id, name, title, company, contact_info, metadata_uri, minted_at
        FROM cards WHERE id = $1
    `, id).Scan(&c.ID, &c.Name, &c.Title, &c.Company, &c.ContactInfo, &c.MetadataURI, &c.MintedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return card.Card{}, fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
		}
		return card.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCard(ctx context.Context, c card.Card) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE cards SET title = $2, company = $3, contact_info = $4, metadata_uri = $5
        WHERE id = $1
    `, c.ID, c.Title, c.Company, c.ContactInfo, c.MetadataURI)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card %d not found: %w", c.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) OwnerOf(ctx context.Context, id uint64) (string, error) {
	var owner string
	err := s.db.QueryRow(ctx, `SELECT owner FROM cards WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("owner of card: %w", err)
	}
	return owner, nil
}

func (s *PostgresStore) CardOf(ctx context.Context, owner string) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `SELECT id FROM cards WHERE owner = $1`, owner).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("address %s owns no card: %w", owner, sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("card of address: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) TransferCard(ctx context.Context, id uint64, to string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE cards SET owner = $2 WHERE id = $1`, id, to)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("address %s already owns a card: %w", to, sentinel.ErrConflict)
		}
		return fmt.Errorf("transfer card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO received_cards (address, card_id) VALUES ($1, $2)
    `, to, id); err != nil {
		return fmt.Errorf("append received log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetRental(ctx context.Context, id uint64, r card.Rental) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO card_rentals (card_id, renter, expires_at) VALUES ($1, $2, $3)
        ON CONFLICT (card_id) DO UPDATE SET renter = EXCLUDED.renter, expires_at = EXCLUDED.expires_at
    `, id, r.Renter, r.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
		}
		return fmt.Errorf("set rental: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRental(ctx context.Context, id uint64) (card.Rental, error) {
	var r card.Rental
	err := s.db.QueryRow(ctx, `
        SELECT renter, expires_at FROM card_rentals WHERE card_id = $1
    `, id).Scan(&r.Renter, &r.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return card.Rental{}, fmt.Errorf("no rental for card %d: %w", id, sentinel.ErrNotFound)
		}
		return card.Rental{}, fmt.Errorf("get rental: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) DeleteRental(ctx context.Context, id uint64) (card.Rental, error) {
	var r card.Rental
	err := s.db.QueryRow(ctx, `
        DELETE FROM card_rentals WHERE card_id = $1 RETURNING renter, expires_at
    `, id).Scan(&r.Renter, &r.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return card.Rental{}, fmt.Errorf("no rental for card %d: %w", id, sentinel.ErrNotFound)
		}
		return card.Rental{}, fmt.Errorf("delete rental: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) RentalsByRenter(ctx context.Context, renter string) (map[uint64]card.Rental, error) {
	rows, err := s.db.Query(ctx, `
        SELECT card_id, renter, expires_at FROM card_rentals WHERE renter = $1
    `, renter)
	if err != nil {
		return nil, fmt.Errorf("rentals by renter: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]card.Rental)
	for rows.Next() {
		var (
			id uint64
			r  card.Rental
		)
		if err := rows.Scan(&id, &r.Renter, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		out[id] = r
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReceivedCards(ctx context.Context, address string) ([]uint64, error) {
	rows, err := s.db.Query(ctx, `
        SELECT card_id FROM received_cards WHERE address = $1 ORDER BY seq
    `, address)
	if err != nil {
		return nil, fmt.Errorf("received cards: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan received card: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) HasReceived(ctx context.Context, address string, id uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM received_cards WHERE address = $1 AND card_id = $2)
    `, address, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has received: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SetMover(ctx context.Context, address string, allowed bool) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO card_movers (address, allowed) VALUES ($1, $2)
        ON CONFLICT (address) DO UPDATE SET allowed = EXCLUDED.allowed
    `, address, allowed)
	if err != nil {
		return fmt.Errorf("set mover: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsMover(ctx context.Context, address string) (bool, error) {
	var allowed bool
	err := s.db.QueryRow(ctx, `SELECT allowed FROM card_movers WHERE address = $1`, address).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("is mover: %w", err)
	}
	return allowed, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
