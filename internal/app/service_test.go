package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/splraffle/raffle-service/internal/domain"
	"github.com/splraffle/raffle-service/internal/store"
	"github.com/splraffle/raffle-service/pkg/rabbitmq"
)

type serviceRepoStub struct {
	store.Repository

	raffle *domain.Raffle

	allocateCalls []store.AllocateTicketsParams
	allocateFunc  func(params store.AllocateTicketsParams) (*domain.Ticket, error)

	ticketTotal     int
	ticketTotalErr  error
	countSoldCalled bool
}

func (s *serviceRepoStub) FindRaffleByID(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	if s.raffle == nil || s.raffle.ID != raffleID {
		return nil, store.ErrRaffleNotFound
	}
	copied := *s.raffle
	return &copied, nil
}

func (s *serviceRepoStub) FindTicketByPaymentReference(ctx context.Context, paymentReference string) (*domain.Ticket, error) {
	return nil, store.ErrTicketNotFound
}

func (s *serviceRepoStub) AllocateTickets(ctx context.Context, params store.AllocateTicketsParams) (*domain.Ticket, error) {
	s.allocateCalls = append(s.allocateCalls, params)
	return s.allocateFunc(params)
}

func (s *serviceRepoStub) UpdateRaffleStatus(ctx context.Context, raffleID uuid.UUID, status string) error {
	s.raffle.Status = status
	return nil
}

func (s *serviceRepoStub) CountTicketsSold(ctx context.Context, raffleID uuid.UUID) (int, error) {
	s.countSoldCalled = true
	return s.ticketTotal, s.ticketTotalErr
}

type fetcherStub struct {
	record *domain.TransactionRecord
	err    error
}

func (f *fetcherStub) GetTransaction(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

type publisherStub struct {
	purchased []rabbitmq.TicketPurchasedEvent
	closed    []rabbitmq.RaffleClosedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *publisherStub) PublishTicketPurchased(ctx context.Context, event rabbitmq.TicketPurchasedEvent) error {
	p.purchased = append(p.purchased, event)
	return nil
}

func (p *publisherStub) PublishRaffleClosed(ctx context.Context, event rabbitmq.RaffleClosedEvent) error {
	p.closed = append(p.closed, event)
	return nil
}

func (p *publisherStub) Close() {}

type rateLimiterStub struct {
	count int
	err   error
}

func (r *rateLimiterStub) ConsumePurchase(ctx context.Context, username string, window time.Duration) (int, int, error) {
	return r.count, 30, r.err
}

func grantTicket(params store.AllocateTicketsParams) (*domain.Ticket, error) {
	return &domain.Ticket{
		ID:               uuid.New(),
		RaffleID:         params.RaffleID,
		Username:         params.Username,
		PaymentReference: params.PaymentReference,
		PaidAmount:       params.PaidAmount,
		Amount:           params.Allocation,
	}, nil
}

func newPurchaseService(repo *serviceRepoStub, fetcher *fetcherStub, publisher *publisherStub) *Service {
	pipeline := NewValidationPipeline(allChecksEnabled(), testWallet, repo)
	return NewService(repo, fetcher, pipeline, publisher)
}

func purchaseRequest(raffleID uuid.UUID) domain.PurchaseTicketRequest {
	return domain.PurchaseTicketRequest{
		RaffleID:         raffleID,
		Username:         "alice",
		PaymentReference: "sig-1",
	}
}

func TestSubmitPurchase_CommitsFullAllocation(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	publisher := &publisherStub{}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, publisher)

	result, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if err != nil {
		t.Fatalf("expected purchase to succeed, got %v", err)
	}
	if result.TicketsGranted != 5 {
		t.Fatalf("expected 5 tickets for 50 at price 10, got %d", result.TicketsGranted)
	}
	if result.Partial || result.RaffleClosed {
		t.Fatalf("expected full allocation with the raffle left open, got %+v", result)
	}
	if len(repo.allocateCalls) != 1 {
		t.Fatalf("expected a single commit attempt, got %d", len(repo.allocateCalls))
	}
	call := repo.allocateCalls[0]
	if call.ExpectedSold != raffle.TicketsSold || call.CloseRaffle {
		t.Fatalf("unexpected commit params: %+v", call)
	}
	if len(publisher.purchased) != 1 || len(publisher.closed) != 0 {
		t.Fatalf("expected one purchase event and no close event, got %d/%d", len(publisher.purchased), len(publisher.closed))
	}
}

func TestSubmitPurchase_ExhaustionClosesRaffleAndPublishes(t *testing.T) {
	raffle := validRaffle()
	raffle.TicketCapacity = 3
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	publisher := &publisherStub{}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, publisher)

	result, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if err != nil {
		t.Fatalf("expected purchase to succeed, got %v", err)
	}
	if result.TicketsGranted != 3 || !result.Partial || !result.RaffleClosed {
		t.Fatalf("expected capped closing allocation, got %+v", result)
	}
	if !repo.allocateCalls[0].CloseRaffle {
		t.Fatal("expected the commit to close the raffle")
	}
	if len(publisher.closed) != 1 {
		t.Fatalf("expected a raffle closed event, got %d", len(publisher.closed))
	}
}

func TestSubmitPurchase_LookupFailure(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	service := newPurchaseService(repo, &fetcherStub{err: errors.New("connection refused")}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if !errors.Is(err, ErrPaymentLookupFailed) {
		t.Fatalf("expected ErrPaymentLookupFailed, got %v", err)
	}
	if len(repo.allocateCalls) != 0 {
		t.Fatal("no commit must be attempted when the lookup fails")
	}
}

func TestSubmitPurchase_ValidationFailureShortCircuits(t *testing.T) {
	raffle := validRaffle()
	record := validRecord()
	record.TokenSymbol = "BONK"
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	service := newPurchaseService(repo, &fetcherStub{record: record}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Check != CheckTokenMatch {
		t.Fatalf("expected token_match validation failure, got %v", err)
	}
	if len(repo.allocateCalls) != 0 {
		t.Fatal("no commit must be attempted when validation fails")
	}
}

func TestSubmitPurchase_ZeroAllocation(t *testing.T) {
	// A below-price amount floors to zero tickets; a negative amount must be
	// caught the same way rather than committed as a negative allocation.
	for _, amount := range []string{"9.99", "-50"} {
		t.Run(amount, func(t *testing.T) {
			raffle := validRaffle()
			record := validRecord()
			record.Amount = decimal.RequireFromString(amount)
			repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
			service := newPurchaseService(repo, &fetcherStub{record: record}, &publisherStub{})

			_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
			if !errors.Is(err, ErrZeroAllocation) {
				t.Fatalf("expected ErrZeroAllocation, got %v", err)
			}
			if len(repo.allocateCalls) != 0 {
				t.Fatal("zero-ticket allocations must not reach the store")
			}
		})
	}
}

func TestSubmitPurchase_SoldOutUpFront(t *testing.T) {
	raffle := validRaffle()
	raffle.TicketsSold = raffle.TicketCapacity
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestSubmitPurchase_ConflictRecomputesOnce(t *testing.T) {
	raffle := validRaffle()
	raffle.TicketCapacity = 8
	repo := &serviceRepoStub{raffle: raffle}
	repo.allocateFunc = func(params store.AllocateTicketsParams) (*domain.Ticket, error) {
		if len(repo.allocateCalls) == 1 {
			// A concurrent purchase advanced the sold count between the read
			// and this commit.
			repo.raffle.TicketsSold = 5
			return nil, store.ErrCapacityConflict
		}
		return grantTicket(params)
	}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})

	result, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if err != nil {
		t.Fatalf("expected the retried purchase to succeed, got %v", err)
	}
	if len(repo.allocateCalls) != 2 {
		t.Fatalf("expected exactly two commit attempts, got %d", len(repo.allocateCalls))
	}
	second := repo.allocateCalls[1]
	if second.ExpectedSold != 5 {
		t.Fatalf("retry must carry the fresh sold count, got %d", second.ExpectedSold)
	}
	// 50 buys 5 at price 10, but only capacity 8 - 5 = 3 remains.
	if result.TicketsGranted != 3 || !result.Partial || !result.RaffleClosed {
		t.Fatalf("expected recomputed capped allocation, got %+v", result)
	}
}

func TestSubmitPurchase_RepeatedConflictBecomesNoCapacity(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle}
	repo.allocateFunc = func(params store.AllocateTicketsParams) (*domain.Ticket, error) {
		repo.raffle.TicketsSold++
		return nil, store.ErrCapacityConflict
	}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity after retry exhaustion, got %v", err)
	}
	if len(repo.allocateCalls) != 2 {
		t.Fatalf("expected exactly two commit attempts, got %d", len(repo.allocateCalls))
	}
}

func TestSubmitPurchase_ConflictAgainstClosedRaffle(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle}
	repo.allocateFunc = func(params store.AllocateTicketsParams) (*domain.Ticket, error) {
		repo.raffle.Status = domain.RaffleStatusClosed
		return nil, store.ErrCapacityConflict
	}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity when the raffle closed mid-flight, got %v", err)
	}
	if len(repo.allocateCalls) != 1 {
		t.Fatalf("no retry once the raffle is closed, got %d attempts", len(repo.allocateCalls))
	}
}

func TestSubmitPurchase_DuplicateReferenceRace(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle}
	repo.allocateFunc = func(params store.AllocateTicketsParams) (*domain.Ticket, error) {
		return nil, store.ErrDuplicatePaymentReference
	}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})

	_, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Check != CheckSignatureUniqueness {
		t.Fatalf("expected signature_uniqueness failure on duplicate reference, got %v", err)
	}
}

func TestSubmitPurchase_RateLimiting(t *testing.T) {
	raffle := validRaffle()
	repo := &serviceRepoStub{raffle: raffle, allocateFunc: grantTicket}
	service := newPurchaseService(repo, &fetcherStub{record: validRecord()}, &publisherStub{})
	service.SetPurchaseRateLimiter(&rateLimiterStub{count: 6}, 5)

	if _, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A broken limiter must not block purchases.
	service.SetPurchaseRateLimiter(&rateLimiterStub{err: errors.New("redis down")}, 5)
	if _, err := service.SubmitPurchase(context.Background(), purchaseRequest(raffle.ID)); err != nil {
		t.Fatalf("expected purchase to proceed when the limiter errors, got %v", err)
	}
}

func TestTransitionRaffleStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		target  string
		wantErr error
	}{
		{name: "created to running", current: domain.RaffleStatusCreated, target: domain.RaffleStatusRunning},
		{name: "running to closed", current: domain.RaffleStatusRunning, target: domain.RaffleStatusClosed},
		{name: "created to closed", current: domain.RaffleStatusCreated, target: domain.RaffleStatusClosed},
		{name: "running back to created", current: domain.RaffleStatusRunning, target: domain.RaffleStatusCreated, wantErr: ErrInvalidStatusTransition},
		{name: "reopening a closed raffle", current: domain.RaffleStatusClosed, target: domain.RaffleStatusRunning, wantErr: ErrInvalidStatusTransition},
		{name: "same status", current: domain.RaffleStatusRunning, target: domain.RaffleStatusRunning, wantErr: ErrInvalidStatusTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raffle := validRaffle()
			raffle.Status = tt.current
			repo := &serviceRepoStub{raffle: raffle}
			service := NewService(repo, nil, nil, nil)

			err := service.TransitionRaffleStatus(context.Background(), raffle.ID, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && repo.raffle.Status != tt.target {
				t.Fatalf("expected status %s, got %s", tt.target, repo.raffle.Status)
			}
		})
	}
}

func TestGetRaffle_CrossChecksSoldCounter(t *testing.T) {
	raffle := validRaffle()
	raffle.TicketsSold = 5

	// Counter and ticket table disagree; the read still succeeds.
	repo := &serviceRepoStub{raffle: raffle, ticketTotal: 3}
	service := NewService(repo, nil, nil, nil)

	got, err := service.GetRaffle(context.Background(), raffle.ID)
	if err != nil {
		t.Fatalf("expected read to succeed despite mismatch, got %v", err)
	}
	if got.TicketsSold != 5 {
		t.Fatalf("the derived counter stays authoritative, got %d", got.TicketsSold)
	}
	if !repo.countSoldCalled {
		t.Fatal("expected the ticket-table total to be read")
	}

	// A failing audit read is tolerated too.
	repo = &serviceRepoStub{raffle: raffle, ticketTotalErr: errors.New("db down")}
	service = NewService(repo, nil, nil, nil)
	if _, err := service.GetRaffle(context.Background(), raffle.ID); err != nil {
		t.Fatalf("expected read to succeed when the audit read fails, got %v", err)
	}
}

func TestCreateRaffle_Validation(t *testing.T) {
	repo := &serviceRepoStub{}
	service := NewService(repo, nil, nil, nil)

	tests := []struct {
		name string
		req  domain.CreateRaffleRequest
	}{
		{name: "missing title", req: domain.CreateRaffleRequest{TicketCapacity: 10, TicketPrice: decimal.RequireFromString("1"), TokenName: "USDC"}},
		{name: "negative capacity", req: domain.CreateRaffleRequest{Title: "x", TicketCapacity: -1, TicketPrice: decimal.RequireFromString("1"), TokenName: "USDC"}},
		{name: "zero price", req: domain.CreateRaffleRequest{Title: "x", TicketCapacity: 10, TokenName: "USDC"}},
		{name: "missing token", req: domain.CreateRaffleRequest{Title: "x", TicketCapacity: 10, TicketPrice: decimal.RequireFromString("1")}},
		{name: "closed initial status", req: domain.CreateRaffleRequest{Title: "x", TicketCapacity: 10, TicketPrice: decimal.RequireFromString("1"), TokenName: "USDC", Status: domain.RaffleStatusClosed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.CreateRaffle(context.Background(), tt.req); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
