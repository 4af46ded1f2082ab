package app

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateAllocation(t *testing.T) {
	tests := []struct {
		name            string
		payment         string
		price           string
		capacity        int
		sold            int
		wantTickets     int
		wantDecision    string
		wantShouldClose bool
	}{
		{
			name:         "full allocation leaves capacity open",
			payment:      "50",
			price:        "10",
			capacity:     100,
			sold:         0,
			wantTickets:  5,
			wantDecision: DecisionFull,
		},
		{
			name:            "partial allocation caps to remaining and closes",
			payment:         "50",
			price:           "10",
			capacity:        3,
			sold:            0,
			wantTickets:     3,
			wantDecision:    DecisionPartial,
			wantShouldClose: true,
		},
		{
			name:         "sold out raffle allocates nothing",
			payment:      "50",
			price:        "10",
			capacity:     5,
			sold:         5,
			wantTickets:  0,
			wantDecision: DecisionSoldOut,
		},
		{
			name:            "exact exhaustion closes the raffle",
			payment:         "50",
			price:           "10",
			capacity:        10,
			sold:            5,
			wantTickets:     5,
			wantDecision:    DecisionFull,
			wantShouldClose: true,
		},
		{
			name:         "fractional remainder is floored away",
			payment:      "59.99",
			price:        "10",
			capacity:     100,
			sold:         0,
			wantTickets:  5,
			wantDecision: DecisionFull,
		},
		{
			name:         "payment below price yields zero tickets",
			payment:      "9.99",
			price:        "10",
			capacity:     100,
			sold:         0,
			wantTickets:  0,
			wantDecision: DecisionFull,
		},
		{
			name:         "negative payment yields zero tickets",
			payment:      "-50",
			price:        "10",
			capacity:     100,
			sold:         0,
			wantTickets:  0,
			wantDecision: DecisionFull,
		},
		{
			name:         "oversold state is treated as sold out",
			payment:      "50",
			price:        "10",
			capacity:     5,
			sold:         7,
			wantTickets:  0,
			wantDecision: DecisionSoldOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := decimal.RequireFromString(tt.payment)
			price := decimal.RequireFromString(tt.price)

			alloc, err := CalculateAllocation(payment, price, tt.capacity, tt.sold)
			if err != nil {
				t.Fatalf("CalculateAllocation returned error: %v", err)
			}
			if alloc.Tickets != tt.wantTickets {
				t.Fatalf("expected tickets=%d, got %d", tt.wantTickets, alloc.Tickets)
			}
			if alloc.Decision != tt.wantDecision {
				t.Fatalf("expected decision=%s, got %s", tt.wantDecision, alloc.Decision)
			}
			if alloc.ShouldClose != tt.wantShouldClose {
				t.Fatalf("expected shouldClose=%t, got %t", tt.wantShouldClose, alloc.ShouldClose)
			}
		})
	}
}

func TestCalculateAllocation_RejectsNonPositivePrice(t *testing.T) {
	payment := decimal.RequireFromString("50")

	for _, price := range []string{"0", "-1"} {
		_, err := CalculateAllocation(payment, decimal.RequireFromString(price), 100, 0)
		if !errors.Is(err, ErrNonPositiveTicketPrice) {
			t.Fatalf("expected ErrNonPositiveTicketPrice for price %s, got %v", price, err)
		}
	}
}
