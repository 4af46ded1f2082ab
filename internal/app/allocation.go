/**
 * @description
 * This file contains the pure allocation arithmetic for ticket purchases:
 * converting a validated on-chain payment into an integral number of ticket
 * units without ever exceeding the raffle's remaining capacity.
 *
 * @notes
 * - Fractional remainders of payment/price are floored away and not tracked
 *   or refunded.
 * - The function has no side effects; the caller commits the result through
 *   the store's conditional update.
 */

package app

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Allocation decisions.
const (
	DecisionFull    = "full"
	DecisionPartial = "partial"
	DecisionSoldOut = "sold_out"
)

// ErrNonPositiveTicketPrice indicates a misconfigured raffle; the calculator
// refuses to divide rather than guess.
var ErrNonPositiveTicketPrice = errors.New("ticket price must be positive")

// Allocation is the outcome of one allocation computation.
type Allocation struct {
	Tickets     int
	Decision    string
	ShouldClose bool // capacity is fully consumed; raffle transitions to closed
}

// CalculateAllocation maps a payment amount onto ticket units given the
// raffle's price, capacity and the authoritative sold count.
func CalculateAllocation(payment, ticketPrice decimal.Decimal, capacity, sold int) (Allocation, error) {
	if ticketPrice.Sign() <= 0 {
		return Allocation{}, ErrNonPositiveTicketPrice
	}

	requested := int(payment.Div(ticketPrice).Floor().IntPart())
	remaining := capacity - sold

	if remaining <= 0 {
		return Allocation{Tickets: 0, Decision: DecisionSoldOut}, nil
	}

	// A payment below the price floors to zero; a negative amount must never
	// reach the store, where it would shrink the sold count.
	if requested <= 0 {
		return Allocation{Tickets: 0, Decision: DecisionFull}, nil
	}

	if requested <= remaining {
		return Allocation{
			Tickets:     requested,
			Decision:    DecisionFull,
			ShouldClose: requested == remaining,
		}, nil
	}

	return Allocation{
		Tickets:     remaining,
		Decision:    DecisionPartial,
		ShouldClose: true,
	}, nil
}
