// Package wallet is the narrow client for the external Lightning wallet
// core. Invoice construction and settlement live entirely on the other side
// of this boundary.
package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// InvoiceExtra is attached to every invoice so the settlement feed can be
// correlated back to a local payment record.
type InvoiceExtra struct {
	Tag      string  `json:"tag"`
	ID       string  `json:"id"`
	Device   string  `json:"Device"`
	Switch   string  `json:"Switch"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type createInvoiceRequest struct {
	Out                  bool         `json:"out"`
	Amount               int64        `json:"amount"`
	Memo                 string       `json:"memo"`
	UnhashedDescription  string       `json:"unhashed_description,omitempty"`
	Extra                InvoiceExtra `json:"extra"`
}

type createInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Detail         string `json:"detail"`
}

// CreateInvoice asks the wallet core for a bolt11 invoice of amountSat,
// authenticated with the device's invoice key. Returns the payment hash and
// the payable request. Failures surface verbatim to the caller.
func (c *Client) CreateInvoice(
	ctx context.Context,
	invoiceKey string,
	amountSat int64,
	memo string,
	description string,
	extra InvoiceExtra,
) (string, string, error) {
	body, err := json.Marshal(createInvoiceRequest{
		Out:                 false,
		Amount:              amountSat,
		Memo:                memo,
		UnhashedDescription: hex.EncodeToString([]byte(description)),
		Extra:               extra,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", invoiceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read wallet response: %w", err)
	}

	var decoded createInvoiceResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", "", fmt.Errorf("decode wallet response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if decoded.Detail != "" {
			return "", "", fmt.Errorf("wallet rejected invoice: %s", decoded.Detail)
		}
		return "", "", fmt.Errorf("wallet rejected invoice: status %d", resp.StatusCode)
	}

	log.Debug().
		Str("paymentHash", decoded.PaymentHash).
		Int64("amountSat", amountSat).
		Msg("invoice created")

	return decoded.PaymentHash, decoded.PaymentRequest, nil
}
