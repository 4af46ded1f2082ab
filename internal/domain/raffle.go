/**
 * @description
 * This file defines the core domain models for the raffle-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - On-chain amounts are `decimal.Decimal` built from the explorer's integer
 *   mantissa + decimal-places pair, so no float64 rounding happens before the
 *   allocation arithmetic.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Raffle statuses. The status is monotonic: created -> running -> closed.
const (
	RaffleStatusCreated = "created"
	RaffleStatusRunning = "running"
	RaffleStatusClosed  = "closed"
)

// Raffle represents a single raffle and its fixed ticket economics.
// This struct maps directly to the `raffles` table in the database.
type Raffle struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         string          `json:"status"` // 'created', 'running', 'closed'
	TicketCapacity int             `json:"ticket_capacity"`
	TicketPrice    decimal.Decimal `json:"ticket_price"`
	TokenName      string          `json:"token_name"` // accepted payment token, e.g. "USDC"
	Rules          string          `json:"rules,omitempty"`
	TicketsSold    int             `json:"tickets_sold"` // authoritative derived count, versioning key for allocation
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Remaining returns the number of ticket units the raffle can still allocate.
func (r *Raffle) Remaining() int {
	return r.TicketCapacity - r.TicketsSold
}

// Ticket represents one committed purchase against a raffle. A ticket is written
// exactly once, atomically with its allocation decision, and never re-allocated.
type Ticket struct {
	ID               uuid.UUID       `json:"id"`
	RaffleID         uuid.UUID       `json:"raffle_id"`
	Username         string          `json:"username"`
	PaymentReference string          `json:"payment_reference"` // on-chain tx signature, unique across all tickets
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	Amount           int             `json:"amount"` // allocated ticket units
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TransactionRecord is the normalized view of an on-chain transaction as returned
// by the block explorer. It is produced per validation attempt and never persisted.
type TransactionRecord struct {
	Signature        string          `json:"signature"`
	SourceOwner      string          `json:"source_owner"`
	DestinationOwner string          `json:"destination_owner"`
	TokenAddress     string          `json:"token_address"`
	TokenSymbol      string          `json:"token_symbol"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	BlockTime        time.Time       `json:"block_time"`
}

// CreateRaffleRequest is the DTO for the raffle creation endpoint.
type CreateRaffleRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	TicketCapacity int             `json:"ticket_capacity"`
	TicketPrice    decimal.Decimal `json:"ticket_price"`
	TokenName      string          `json:"token_name"`
	Rules          string          `json:"rules,omitempty"`
	Status         string          `json:"status,omitempty"` // defaults to 'created'
}

// UpdateRaffleRequest is the DTO for the raffle update endpoint. Only the
// description is mutable after creation; economics are fixed.
type UpdateRaffleRequest struct {
	Description string `json:"description"`
}

// PurchaseTicketRequest is the DTO for a ticket purchase submission.
type PurchaseTicketRequest struct {
	RaffleID         uuid.UUID `json:"raffle_id"`
	Username         string    `json:"username"`
	PaymentReference string    `json:"payment_reference"`
}

// PurchaseResult is returned to the caller after a committed allocation.
type PurchaseResult struct {
	Ticket         *Ticket `json:"ticket"`
	TicketsGranted int     `json:"tickets_granted"`
	RaffleClosed   bool    `json:"raffle_closed"`
	Partial        bool    `json:"partial"` // allocation was capped to remaining capacity
}
