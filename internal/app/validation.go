/**
 * @description
 * This file implements the validation pipeline that decides whether a fetched
 * on-chain transaction is an acceptable basis for allocating tickets to a
 * raffle. Each check can be enabled or disabled through the configuration
 * passed to the constructor; a disabled check is skipped, never treated as
 * failing. Checks run in a fixed order and the first enabled failure wins.
 *
 * @dependencies
 * - context, fmt, strings: Standard Go libraries.
 * - internal/config, internal/domain, internal/store.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/splraffle/raffle-service/internal/config"
	"github.com/splraffle/raffle-service/internal/domain"
	"github.com/splraffle/raffle-service/internal/store"
)

// Check names, used as the failure reason in API responses and logs.
const (
	CheckTokenMatch          = "token_match"
	CheckTransactionStatus   = "transaction_status"
	CheckRaffleExists        = "raffle_exists"
	CheckRaffleRunning       = "raffle_running"
	CheckTemporalValidity    = "temporal_validity"
	CheckDestinationValidity = "destination_validity"
	CheckSignatureUniqueness = "signature_uniqueness"
)

// ValidationError reports which check rejected the transaction.
type ValidationError struct {
	Check   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Check, e.Message)
}

// ValidationPipeline runs the configured checks against a transaction record
// and its target raffle.
type ValidationPipeline struct {
	checks          config.ValidationChecks
	receivingWallet string
	repo            store.Repository
}

// NewValidationPipeline builds a pipeline with an explicit check-set. The
// receiving wallet is the address payments must be destined to.
func NewValidationPipeline(checks config.ValidationChecks, receivingWallet string, repo store.Repository) *ValidationPipeline {
	return &ValidationPipeline{
		checks:          checks,
		receivingWallet: receivingWallet,
		repo:            repo,
	}
}

// Validate runs all enabled checks in order. paymentReference is the submitted
// signature, used as the idempotency key for the uniqueness check. On success
// it returns the raffle the record was validated against; on failure it returns
// a *ValidationError naming the first failing check.
func (p *ValidationPipeline) Validate(ctx context.Context, record *domain.TransactionRecord, raffleID uuid.UUID, paymentReference string) (*domain.Raffle, error) {
	raffle, err := p.repo.FindRaffleByID(ctx, raffleID)
	if err != nil && !errors.Is(err, store.ErrRaffleNotFound) {
		return nil, fmt.Errorf("failed to load raffle %s: %w", raffleID, err)
	}

	// Checks 1, 4 and 5 need the raffle; when it is missing they cannot pass,
	// and the most truthful reason is that the raffle does not exist.
	raffleRequired := p.checks.TokenMatch || p.checks.RaffleExists || p.checks.RaffleRunning || p.checks.TemporalValidity
	if raffle == nil && raffleRequired {
		return nil, &ValidationError{Check: CheckRaffleExists, Message: "raffle does not exist"}
	}

	// 1. Token match
	if p.checks.TokenMatch && !strings.Contains(raffle.TokenName, record.TokenSymbol) {
		return nil, &ValidationError{Check: CheckTokenMatch, Message: fmt.Sprintf("wrong token %q sent, raffle accepts %q", record.TokenSymbol, raffle.TokenName)}
	}

	// 2. Transaction status
	if p.checks.TransactionStatus && !strings.Contains(record.Status, "Success") {
		return nil, &ValidationError{Check: CheckTransactionStatus, Message: fmt.Sprintf("transaction status %q is not settled", record.Status)}
	}

	// 3. Raffle existence (covered above when the raffle failed to load)

	// 4. Raffle running
	if p.checks.RaffleRunning && !raffleAcceptsPurchases(raffle.Status, p.checks.RunningMode) {
		return nil, &ValidationError{Check: CheckRaffleRunning, Message: fmt.Sprintf("raffle is not running (status %q)", raffle.Status)}
	}

	// 5. Temporal validity
	if p.checks.TemporalValidity && record.BlockTime.Before(raffle.CreatedAt) {
		return nil, &ValidationError{Check: CheckTemporalValidity, Message: "transaction predates raffle creation"}
	}

	// 6. Destination validity
	if p.checks.DestinationValidity && !strings.Contains(record.DestinationOwner, p.receivingWallet) {
		return nil, &ValidationError{Check: CheckDestinationValidity, Message: "destination invalid"}
	}

	// 7. Signature uniqueness
	if p.checks.SignatureUniqueness {
		existing, err := p.repo.FindTicketByPaymentReference(ctx, paymentReference)
		if err != nil && !errors.Is(err, store.ErrTicketNotFound) {
			return nil, fmt.Errorf("failed to check payment reference %s: %w", paymentReference, err)
		}
		if existing != nil {
			return nil, &ValidationError{Check: CheckSignatureUniqueness, Message: "payment reference already used"}
		}
	}

	return raffle, nil
}

func raffleAcceptsPurchases(status, runningMode string) bool {
	if runningMode == config.RunningModeOpen {
		return status != domain.RaffleStatusClosed
	}
	return status == domain.RaffleStatusRunning
}
