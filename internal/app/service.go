/**
 * @description
 * This file contains the core business logic for the raffle-service. The `Service`
 * struct orchestrates ticket purchases, coordinating between the database
 * repository, the block-explorer client, and the message broker.
 *
 * Key features:
 * - Implements the purchase state machine: fetch -> validate -> allocate -> commit.
 * - Commits capacity consumption through the store's conditional update, with a
 *   single recompute-and-retry when a concurrent purchase wins the race.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/splraffle/raffle-service/internal/domain"
	"github.com/splraffle/raffle-service/internal/store"
	"github.com/splraffle/raffle-service/pkg/rabbitmq"
)

var (
	// ErrPaymentLookupFailed covers network/API failures resolving the payment reference.
	ErrPaymentLookupFailed = errors.New("payment lookup failed")
	// ErrNoCapacity is returned when the raffle has no remaining capacity, either
	// up front or after the conditional-update retry was exhausted.
	ErrNoCapacity = errors.New("raffle is sold out")
	// ErrZeroAllocation is returned when a validated payment converts to zero tickets.
	ErrZeroAllocation = errors.New("payment yields zero tickets")
	// ErrRateLimited is returned when the purchaser exceeded the purchase rate limit.
	ErrRateLimited = errors.New("purchase rate limit exceeded")
	// ErrInvalidStatusTransition is returned for non-monotonic raffle status changes.
	ErrInvalidStatusTransition = errors.New("raffle status cannot move backwards")
)

// TransactionFetcher resolves a payment reference to a normalized transaction record.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*domain.TransactionRecord, error)
}

// PurchaseRateLimiter counts purchase submissions per username within a window.
type PurchaseRateLimiter interface {
	ConsumePurchase(ctx context.Context, username string, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for raffles and ticket purchases.
type Service struct {
	repo          store.Repository
	fetcher       TransactionFetcher
	pipeline      *ValidationPipeline
	eventProducer rabbitmq.Publisher

	rateLimiter        PurchaseRateLimiter
	purchasesPerMinute int
}

// NewService creates a new raffle service instance.
func NewService(repo store.Repository, fetcher TransactionFetcher, pipeline *ValidationPipeline, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		fetcher:       fetcher,
		pipeline:      pipeline,
		eventProducer: producer,
	}
}

// SetPurchaseRateLimiter enables per-username purchase rate limiting.
func (s *Service) SetPurchaseRateLimiter(limiter PurchaseRateLimiter, purchasesPerMinute int) {
	s.rateLimiter = limiter
	s.purchasesPerMinute = purchasesPerMinute
}

// SubmitPurchase runs one purchase request through the full pipeline and
// returns the committed allocation. Failure modes:
//   - ErrPaymentLookupFailed: reference unresolvable or explorer unreachable
//   - *ValidationError: a named check rejected the transaction
//   - ErrNoCapacity / ErrZeroAllocation: nothing could be allocated
//   - anything else: persistence failure; nothing was written
func (s *Service) SubmitPurchase(ctx context.Context, req domain.PurchaseTicketRequest) (*domain.PurchaseResult, error) {
	if err := s.consumePurchaseBudget(ctx, req.Username); err != nil {
		return nil, err
	}

	// Fetching. This happens before any capacity reservation; no store state is
	// held across the network call.
	record, err := s.fetcher.GetTransaction(ctx, req.PaymentReference)
	if err != nil {
		log.Printf("level=warn component=purchase msg=\"payment lookup failed\" reference=%s err=%v", req.PaymentReference, err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentLookupFailed, err)
	}
	log.Printf("level=info component=purchase msg=\"transaction fetched\" username=%s reference=%s amount=%s token=%s", req.Username, req.PaymentReference, record.Amount, record.TokenSymbol)

	// Validating.
	raffle, err := s.pipeline.Validate(ctx, record, req.RaffleID, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if raffle == nil {
		// Every raffle-scoped check was disabled; allocation still needs one.
		return nil, store.ErrRaffleNotFound
	}

	// Allocating. The allocation is computed from an observed sold count and
	// committed only if that count is still current; one recompute against
	// fresh state is allowed before giving up.
	sold := raffle.TicketsSold
	for attempt := 0; attempt < 2; attempt++ {
		alloc, err := CalculateAllocation(record.Amount, raffle.TicketPrice, raffle.TicketCapacity, sold)
		if err != nil {
			return nil, fmt.Errorf("allocation misconfigured for raffle %s: %w", raffle.ID, err)
		}
		if alloc.Tickets == 0 {
			if alloc.Decision == DecisionSoldOut {
				return nil, ErrNoCapacity
			}
			return nil, ErrZeroAllocation
		}

		ticket, err := s.repo.AllocateTickets(ctx, store.AllocateTicketsParams{
			RaffleID:         raffle.ID,
			Username:         req.Username,
			PaymentReference: req.PaymentReference,
			PaidAmount:       record.Amount,
			Allocation:       alloc.Tickets,
			ExpectedSold:     sold,
			CloseRaffle:      alloc.ShouldClose,
		})
		if err == nil {
			s.publishPurchaseEvents(ctx, raffle.ID, ticket, alloc)
			log.Printf("level=info component=purchase msg=\"allocation committed\" raffle_id=%s ticket_id=%s username=%s tickets=%d decision=%s", raffle.ID, ticket.ID, req.Username, alloc.Tickets, alloc.Decision)
			return &domain.PurchaseResult{
				Ticket:         ticket,
				TicketsGranted: alloc.Tickets,
				RaffleClosed:   alloc.ShouldClose,
				Partial:        alloc.Decision == DecisionPartial,
			}, nil
		}

		if errors.Is(err, store.ErrDuplicatePaymentReference) {
			// A racing request with the same reference committed first.
			return nil, &ValidationError{Check: CheckSignatureUniqueness, Message: "payment reference already used"}
		}
		if !errors.Is(err, store.ErrCapacityConflict) {
			return nil, fmt.Errorf("failed to commit allocation: %w", err)
		}
		if attempt == 1 {
			break
		}

		// Lost the race; recompute from the authoritative state once.
		fresh, readErr := s.repo.FindRaffleByID(ctx, raffle.ID)
		if readErr != nil {
			return nil, fmt.Errorf("failed to re-read raffle after conflict: %w", readErr)
		}
		if fresh.Status == domain.RaffleStatusClosed {
			return nil, ErrNoCapacity
		}
		raffle = fresh
		sold = fresh.TicketsSold
		log.Printf("level=info component=purchase msg=\"capacity conflict; recomputing\" raffle_id=%s sold=%d", raffle.ID, sold)
	}

	// Repeated conflict is surfaced as sold out rather than retried forever.
	return nil, ErrNoCapacity
}

func (s *Service) consumePurchaseBudget(ctx context.Context, username string) error {
	if s.rateLimiter == nil || s.purchasesPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumePurchase(ctx, username, time.Minute)
	if err != nil {
		// Rate limiting is protective, not load-bearing; degrade open.
		log.Printf("level=warn component=purchase msg=\"rate limiter unavailable; allowing request\" username=%s err=%v", username, err)
		return nil
	}
	if count > s.purchasesPerMinute {
		log.Printf("level=info component=purchase msg=\"rate limited\" username=%s count=%d retry_after=%d", username, count, retryAfter)
		return ErrRateLimited
	}
	return nil
}

func (s *Service) publishPurchaseEvents(ctx context.Context, raffleID uuid.UUID, ticket *domain.Ticket, alloc Allocation) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.TicketPurchasedEvent{
		RaffleID:         raffleID,
		TicketID:         ticket.ID,
		Username:         ticket.Username,
		PaymentReference: ticket.PaymentReference,
		Tickets:          ticket.Amount,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.eventProducer.PublishTicketPurchased(ctx, event); err != nil {
		log.Printf("level=warn component=purchase msg=\"ticket purchased event publish failed\" ticket_id=%s err=%v", ticket.ID, err)
	}
	if alloc.ShouldClose {
		closed := rabbitmq.RaffleClosedEvent{RaffleID: raffleID, Timestamp: time.Now().UTC()}
		if err := s.eventProducer.PublishRaffleClosed(ctx, closed); err != nil {
			log.Printf("level=warn component=purchase msg=\"raffle closed event publish failed\" raffle_id=%s err=%v", raffleID, err)
		}
	}
}

// CreateRaffle validates and persists a new raffle.
func (s *Service) CreateRaffle(ctx context.Context, req domain.CreateRaffleRequest) (*domain.Raffle, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("raffle title is required")
	}
	if req.TicketCapacity < 0 {
		return nil, errors.New("ticket capacity must be non-negative")
	}
	if req.TicketPrice.Sign() <= 0 {
		return nil, ErrNonPositiveTicketPrice
	}
	if strings.TrimSpace(req.TokenName) == "" {
		return nil, errors.New("token name is required")
	}

	status := req.Status
	if status == "" {
		status = domain.RaffleStatusCreated
	}
	if status != domain.RaffleStatusCreated && status != domain.RaffleStatusRunning {
		return nil, fmt.Errorf("invalid initial status %q", status)
	}

	raffle := &domain.Raffle{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Status:         status,
		TicketCapacity: req.TicketCapacity,
		TicketPrice:    req.TicketPrice,
		TokenName:      strings.TrimSpace(req.TokenName),
		Rules:          req.Rules,
	}
	if err := s.repo.CreateRaffle(ctx, raffle); err != nil {
		return nil, err
	}
	log.Printf("level=info component=raffle msg=\"raffle created\" raffle_id=%s title=%q capacity=%d price=%s token=%s", raffle.ID, raffle.Title, raffle.TicketCapacity, raffle.TicketPrice, raffle.TokenName)
	return raffle, nil
}

// GetRaffle returns one raffle by id. The derived sold counter is cross-checked
// against the ticket table; a mismatch is reported but does not fail the read.
func (s *Service) GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	raffle, err := s.repo.FindRaffleByID(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if total, err := s.repo.CountTicketsSold(ctx, raffleID); err != nil {
		log.Printf("level=warn component=raffle msg=\"sold count audit read failed\" raffle_id=%s err=%v", raffleID, err)
	} else if total != raffle.TicketsSold {
		log.Printf("level=warn component=raffle msg=\"sold counter disagrees with ticket total\" raffle_id=%s counter=%d ticket_total=%d", raffleID, raffle.TicketsSold, total)
	}
	return raffle, nil
}

// ListRaffles returns all raffles.
func (s *Service) ListRaffles(ctx context.Context) ([]domain.Raffle, error) {
	return s.repo.ListRaffles(ctx)
}

// UpdateRaffleDescription updates the raffle's description text.
func (s *Service) UpdateRaffleDescription(ctx context.Context, raffleID uuid.UUID, description string) error {
	return s.repo.UpdateRaffleDescription(ctx, raffleID, description)
}

// TransitionRaffleStatus moves the raffle along created -> running -> closed.
// Regressions are rejected; closing is irreversible.
func (s *Service) TransitionRaffleStatus(ctx context.Context, raffleID uuid.UUID, status string) error {
	rank := map[string]int{
		domain.RaffleStatusCreated: 0,
		domain.RaffleStatusRunning: 1,
		domain.RaffleStatusClosed:  2,
	}
	newRank, ok := rank[status]
	if !ok {
		return fmt.Errorf("invalid status %q", status)
	}

	raffle, err := s.repo.FindRaffleByID(ctx, raffleID)
	if err != nil {
		return err
	}
	if newRank <= rank[raffle.Status] {
		return ErrInvalidStatusTransition
	}
	return s.repo.UpdateRaffleStatus(ctx, raffleID, status)
}

// DeleteRaffle removes a raffle and its tickets. Administrative operation.
func (s *Service) DeleteRaffle(ctx context.Context, raffleID uuid.UUID) error {
	return s.repo.DeleteRaffle(ctx, raffleID)
}

// GetTicket returns one ticket by id.
func (s *Service) GetTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return s.repo.FindTicketByID(ctx, ticketID)
}

// ListTickets returns all tickets.
func (s *Service) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.repo.ListTickets(ctx)
}

// ListRaffleTickets returns all tickets for one raffle.
func (s *Service) ListRaffleTickets(ctx context.Context, raffleID uuid.UUID) ([]domain.Ticket, error) {
	return s.repo.ListTicketsByRaffle(ctx, raffleID)
}

// DeleteTicket removes a ticket. Administrative operation.
func (s *Service) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	return s.repo.DeleteTicket(ctx, ticketID)
}
