/**
 * @description
 * This package provides a client for the Solscan public block-explorer API.
 * It resolves an SPL transaction signature into a normalized transaction
 * record: source/destination owners, transferred token, exact amount, status
 * and block time.
 *
 * @notes
 * - Solscan reports token amounts as an integer mantissa plus a decimal-places
 *   count. The pair is converted into a decimal.Decimal here, at the boundary,
 *   so no float arithmetic touches the amount before allocation.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact fixed-point amounts.
 */
package solscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/splraffle/raffle-service/internal/domain"
)

// ErrNoTokenTransfer is returned when the transaction carries no SPL token transfer.
var ErrNoTokenTransfer = errors.New("transaction has no token transfer")

// Client is a client for the Solscan public API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Solscan API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// transactionResponse mirrors the relevant slice of Solscan's transaction payload.
type transactionResponse struct {
	TxHash         string `json:"txHash"`
	Status         string `json:"status"`
	BlockTime      int64  `json:"blockTime"`
	TokenTransfers []struct {
		SourceOwner      string      `json:"source_owner"`
		DestinationOwner string      `json:"destination_owner"`
		Amount           json.Number `json:"amount"`
		Token            struct {
			Address  string `json:"address"`
			Symbol   string `json:"symbol"`
			Decimals int32  `json:"decimals"`
		} `json:"token"`
	} `json:"tokenTransfers"`
}

// APIError represents a non-2xx response from the Solscan API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("solscan api error: status %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("solscan api error: status %d", e.StatusCode)
}

// GetTransaction fetches a transaction by signature and normalizes it.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	url := c.BaseURL + "/transaction/" + signature

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("token", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transaction request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(bodyBytes, &errBody)
		log.Printf("level=warn component=solscan_client op=get_transaction signature=%s status=%d msg=%q", signature, resp.StatusCode, errBody.Message)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errBody.Message}
	}

	var payload transactionResponse
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode transaction response: %w", err)
	}
	if len(payload.TokenTransfers) == 0 {
		return nil, ErrNoTokenTransfer
	}

	transfer := payload.TokenTransfers[0]
	mantissa, err := transfer.Amount.Int64()
	if err != nil {
		return nil, fmt.Errorf("failed to parse transfer amount %q: %w", transfer.Amount.String(), err)
	}

	record := &domain.TransactionRecord{
		Signature:        payload.TxHash,
		SourceOwner:      transfer.SourceOwner,
		DestinationOwner: transfer.DestinationOwner,
		TokenAddress:     transfer.Token.Address,
		TokenSymbol:      transfer.Token.Symbol,
		Amount:           decimal.New(mantissa, -transfer.Token.Decimals),
		Status:           payload.Status,
		BlockTime:        time.Unix(payload.BlockTime, 0).UTC(),
	}

	return record, nil
}
