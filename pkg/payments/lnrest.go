package payments

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// LNRestProviderParams configures a Provider backed by an LND-style REST API.
type LNRestProviderParams struct {
	BaseURL string
	// Macaroon is the hex-encoded authentication macaroon.
	Macaroon string
	// RetryMax bounds HTTP retries for transient failures.
	RetryMax int
	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// LNRestProvider talks to a Lightning node over REST. This adapter is the one
// place that decides which response fields count as settlement proof: the
// nominal invoice state string, an all-zero preimage and a zero settle date
// are all normalized here so callers only see the typed SettlementStatus.
type LNRestProvider struct {
	baseURL  string
	macaroon string
	client   *retryablehttp.Client
}

func NewLNRestProvider(params LNRestProviderParams) *LNRestProvider {
	if params.RetryMax == 0 {
		params.RetryMax = 3
	}
	if params.Timeout == 0 {
		params.Timeout = 30 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = params.RetryMax
	client.HTTPClient.Timeout = params.Timeout
	client.Logger = nil
	return &LNRestProvider{
		baseURL:  params.BaseURL,
		macaroon: params.Macaroon,
		client:   client,
	}
}

type lnrestInvoiceRequest struct {
	Memo  string `json:"memo,omitempty"`
	Value string `json:"value"`
}

type lnrestInvoiceResponse struct {
	PaymentRequest string `json:"payment_request"`
	RHash          string `json:"r_hash"`
}

type lnrestPayRequest struct {
	PaymentRequest string `json:"payment_request"`
	FeeLimitSat    string `json:"fee_limit_sat,omitempty"`
}

type lnrestPayResponse struct {
	PaymentHash     string `json:"payment_hash"`
	PaymentPreimage string `json:"payment_preimage"`
	Status          string `json:"status"`
}

type lnrestLookupResponse struct {
	State      string `json:"state"`
	Settled    bool   `json:"settled"`
	RPreimage  string `json:"r_preimage"`
	SettleDate string `json:"settle_date"`
	AmtPaidSat string `json:"amt_paid_sat"`
}

func (p *LNRestProvider) CreateInvoice(ctx context.Context, amountUnits uint64, memo string) (Invoice, error) {
	var response lnrestInvoiceResponse
	err := p.post(ctx, "/v1/invoices", lnrestInvoiceRequest{
		Memo:  memo,
		Value: strconv.FormatUint(amountUnits, 10),
	}, &response)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Invoice:          response.PaymentRequest,
		PaymentReference: response.RHash,
	}, nil
}

func (p *LNRestProvider) PayInvoice(ctx context.Context, invoice string, maxFeeUnits uint64) (PaymentResult, error) {
	request := lnrestPayRequest{PaymentRequest: invoice}
	if maxFeeUnits > 0 {
		request.FeeLimitSat = strconv.FormatUint(maxFeeUnits, 10)
	}
	var response lnrestPayResponse
	if err := p.post(ctx, "/v2/router/send", request, &response); err != nil {
		return PaymentResult{}, err
	}
	// an IN_FLIGHT response is a pending payment, not a failure
	return PaymentResult{
		PaymentReference: response.PaymentHash,
		Settled:          response.Status == "SUCCEEDED",
	}, nil
}

func (p *LNRestProvider) CheckSettlement(ctx context.Context, paymentReference string) (SettlementStatus, error) {
	var response lnrestLookupResponse
	if err := p.get(ctx, "/v1/invoice/"+paymentReference, &response); err != nil {
		return SettlementStatus{}, err
	}

	status := SettlementStatus{
		Settled: response.Settled || response.State == "SETTLED",
		Expired: response.State == "CANCELED",
	}
	if preimage := normalizePreimage(response.RPreimage); preimage != "" {
		status.Preimage = preimage
	}
	if response.AmtPaidSat != "" {
		if paid, err := strconv.ParseUint(response.AmtPaidSat, 10, 64); err == nil {
			status.SettledAmount = paid
		}
	}
	if response.SettleDate != "" && response.SettleDate != "0" {
		if epoch, err := strconv.ParseInt(response.SettleDate, 10, 64); err == nil && epoch > 0 {
			status.SettledAt = time.Unix(epoch, 0).UTC()
		}
	}
	return status, nil
}

// normalizePreimage drops the all-zero placeholder some nodes return for
// unsettled invoices, so an empty preimage really means "no proof".
func normalizePreimage(preimage string) string {
	if preimage == "" {
		return ""
	}
	raw, err := hex.DecodeString(preimage)
	if err != nil {
		// base64 or otherwise non-hex preimages are passed through as-is
		return preimage
	}
	for _, b := range raw {
		if b != 0 {
			return preimage
		}
	}
	return ""
}

func (p *LNRestProvider) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return p.do(ctx, request, out)
}

func (p *LNRestProvider) get(ctx context.Context, path string, out interface{}) error {
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(ctx, request, out)
}

func (p *LNRestProvider) do(ctx context.Context, request *retryablehttp.Request, out interface{}) error {
	request.Header.Set("Content-Type", "application/json")
	if p.macaroon != "" {
		request.Header.Set("Grpc-Metadata-Macaroon", p.macaroon)
	}

	response, err := p.client.Do(request)
	if err != nil {
		// retryablehttp already exhausted its retries
		return NewErrTransient(err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusInternalServerError {
		return NewErrTransient(fmt.Errorf("lightning node returned %d", response.StatusCode))
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("lightning node returned %d for %s", response.StatusCode, request.URL.Path)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("path", request.URL.Path).Msg("failed to decode lightning node response")
		return fmt.Errorf("decoding lightning node response: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Provider = (*LNRestProvider)(nil)
