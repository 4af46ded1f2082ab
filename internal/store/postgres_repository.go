/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to raffles and tickets, including the atomic capacity reservation that
 * backs ticket allocation.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/splraffle/raffle-service/internal/domain"
)

var (
	ErrRaffleNotFound            = errors.New("raffle not found")
	ErrTicketNotFound            = errors.New("ticket not found")
	ErrCapacityConflict          = errors.New("raffle sold count changed since it was read")
	ErrDuplicatePaymentReference = errors.New("payment reference already used")
)

const pgUniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const raffleColumns = `id, title, description, status, ticket_capacity, ticket_price, token_name, rules, tickets_sold, created_at, updated_at`

func scanRaffle(row pgx.Row) (*domain.Raffle, error) {
	var raffle domain.Raffle
	err := row.Scan(
		&raffle.ID,
		&raffle.Title,
		&raffle.Description,
		&raffle.Status,
		&raffle.TicketCapacity,
		&raffle.TicketPrice,
		&raffle.TokenName,
		&raffle.Rules,
		&raffle.TicketsSold,
		&raffle.CreatedAt,
		&raffle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

// CreateRaffle inserts a new raffle row. The id and timestamps are assigned here.
func (r *PostgresRepository) CreateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	if raffle.ID == uuid.Nil {
		raffle.ID = uuid.New()
	}
	now := time.Now().UTC()
	raffle.CreatedAt = now
	raffle.UpdatedAt = now

	query := `
		INSERT INTO raffles (id, title, description, status, ticket_capacity, ticket_price, token_name, rules, tickets_sold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)
	`
	_, err := r.db.Exec(ctx, query,
		raffle.ID, raffle.Title, raffle.Description, raffle.Status,
		raffle.TicketCapacity, raffle.TicketPrice, raffle.TokenName, raffle.Rules, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert raffle: %w", err)
	}
	return nil
}

// FindRaffleByID retrieves a raffle from the database by its ID.
func (r *PostgresRepository) FindRaffleByID(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1`
	raffle, err := scanRaffle(r.db.QueryRow(ctx, query, raffleID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRaffleNotFound
		}
		return nil, err
	}
	return raffle, nil
}

// ListRaffles returns all raffles, newest first.
func (r *PostgresRepository) ListRaffles(ctx context.Context) ([]domain.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raffles []domain.Raffle
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, *raffle)
	}
	return raffles, rows.Err()
}

// UpdateRaffleDescription updates the only mutable raffle attribute.
func (r *PostgresRepository) UpdateRaffleDescription(ctx context.Context, raffleID uuid.UUID, description string) error {
	query := `UPDATE raffles SET description = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, raffleID, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRaffleNotFound
	}
	return nil
}

// UpdateRaffleStatus moves a raffle along its lifecycle. The status is
// monotonic; a closed raffle never leaves the closed state.
func (r *PostgresRepository) UpdateRaffleStatus(ctx context.Context, raffleID uuid.UUID, status string) error {
	query := `UPDATE raffles SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $3`
	tag, err := r.db.Exec(ctx, query, raffleID, status, domain.RaffleStatusClosed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRaffleNotFound
	}
	return nil
}

// DeleteRaffle removes a raffle and its tickets.
func (r *PostgresRepository) DeleteRaffle(ctx context.Context, raffleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE raffle_id = $1`, raffleID); err != nil {
		return fmt.Errorf("failed to delete raffle tickets: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM raffles WHERE id = $1`, raffleID)
	if err != nil {
		return fmt.Errorf("failed to delete raffle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRaffleNotFound
	}
	return tx.Commit(ctx)
}

const ticketColumns = `id, raffle_id, username, payment_reference, paid_amount, amount, created_at, updated_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.RaffleID,
		&ticket.Username,
		&ticket.PaymentReference,
		&ticket.PaidAmount,
		&ticket.Amount,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// FindTicketByID retrieves a ticket from the database by its ID.
func (r *PostgresRepository) FindTicketByID(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, ticketID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns all tickets, newest first.
func (r *PostgresRepository) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	return r.listTickets(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC`)
}

// ListTicketsByRaffle returns all tickets committed against one raffle.
func (r *PostgresRepository) ListTicketsByRaffle(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return r.listTickets(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE raffle_id = $1 ORDER BY created_at ASC`, raffleID)
}

func (r *PostgresRepository) listTickets(ctx context.Context, query string, args ...interface{}) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

// FindTicketByPaymentReference looks up a ticket by its on-chain signature.
// Returns ErrTicketNotFound when the reference has never been used.
func (r *PostgresRepository) FindTicketByPaymentReference(ctx context.Context, paymentReference string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_reference = $1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, paymentReference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// CountTicketsSold sums allocated ticket units for one raffle straight from the
// tickets table, bypassing the derived tickets_sold counter.
func (r *PostgresRepository) CountTicketsSold(ctx context.Context, raffleID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM tickets WHERE raffle_id = $1`, raffleID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ticket units: %w", err)
	}
	return total, nil
}

// DeleteTicket removes a ticket. Administrative operation; it does not release
// the raffle capacity the ticket consumed.
func (r *PostgresRepository) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// AllocateTickets performs the atomic capacity reservation for one purchase.
// The sold-count advance is conditioned on the value the caller computed its
// allocation from, so two racing purchases cannot both commit against the same
// remaining capacity; the loser sees ErrCapacityConflict and recomputes. The
// ticket insert rides in the same database transaction, and the unique index on
// payment_reference turns a double-spend race into ErrDuplicatePaymentReference.
func (r *PostgresRepository) AllocateTickets(ctx context.Context, params AllocateTicketsParams) (*domain.Ticket, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE raffles
		SET tickets_sold = tickets_sold + $2,
		    status = CASE WHEN $3 THEN 'closed' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND tickets_sold = $4 AND status <> 'closed'
	`
	tag, err := tx.Exec(ctx, updateQuery, params.RaffleID, params.Allocation, params.CloseRaffle, params.ExpectedSold)
	if err != nil {
		return nil, fmt.Errorf("failed to advance raffle sold count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a vanished raffle from a lost race.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM raffles WHERE id = $1)`, params.RaffleID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check raffle existence: %w", err)
		}
		if !exists {
			return nil, ErrRaffleNotFound
		}
		return nil, ErrCapacityConflict
	}

	ticket := &domain.Ticket{
		ID:               uuid.New(),
		RaffleID:         params.RaffleID,
		Username:         params.Username,
		PaymentReference: params.PaymentReference,
		PaidAmount:       params.PaidAmount,
		Amount:           params.Allocation,
	}
	insertQuery := `
		INSERT INTO tickets (id, raffle_id, username, payment_reference, paid_amount, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, insertQuery,
		ticket.ID, ticket.RaffleID, ticket.Username, ticket.PaymentReference, ticket.PaidAmount, ticket.Amount,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicatePaymentReference
		}
		return nil, fmt.Errorf("failed to insert ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return ticket, nil
}
