/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the raffle-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - github.com/shopspring/decimal: Exact paid-amount values.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/splraffle/raffle-service/internal/domain"
)

// AllocateTicketsParams carries one capacity reservation attempt. ExpectedSold is
// the tickets_sold value the caller computed the allocation from; the write only
// commits if the stored value still matches it.
type AllocateTicketsParams struct {
	RaffleID         uuid.UUID
	Username         string
	PaymentReference string
	PaidAmount       decimal.Decimal
	Allocation       int
	ExpectedSold     int
	CloseRaffle      bool
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Raffle methods
	CreateRaffle(ctx context.Context, raffle *domain.Raffle) error
	FindRaffleByID(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error)
	ListRaffles(ctx context.Context) ([]domain.Raffle, error)
	UpdateRaffleDescription(ctx context.Context, raffleID uuid.UUID, description string) error
	UpdateRaffleStatus(ctx context.Context, raffleID uuid.UUID, status string) error
	DeleteRaffle(ctx context.Context, raffleID uuid.UUID) error

	// Ticket methods
	FindTicketByID(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	ListTicketsByRaffle(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error)
	FindTicketByPaymentReference(ctx context.Context, paymentReference string) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, ticketID uuid.UUID) error

	// CountTicketsSold sums the allocated units in the tickets table for one
	// raffle. Reconciliation read; allocation itself conditions on the
	// raffles.tickets_sold counter.
	CountTicketsSold(ctx context.Context, raffleID uuid.UUID) (int, error)

	// AllocateTickets inserts the ticket and advances the raffle's sold count
	// (closing the raffle when requested) in one atomic operation, conditioned
	// on the sold count still matching ExpectedSold. Returns ErrCapacityConflict
	// when the condition fails and ErrDuplicatePaymentReference when the payment
	// reference is already bound to a ticket.
	AllocateTickets(ctx context.Context, params AllocateTicketsParams) (*domain.Ticket, error)
}
