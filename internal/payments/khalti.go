package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgErrors "cinereserve/pkg/errors"
	"cinereserve/pkg/logger"
)

// KhaltiConfig configures the Khalti ePayment adapter.
type KhaltiConfig struct {
	BaseURL    string // e.g. https://dev.khalti.com/api/v2
	SecretKey  string
	ReturnURL  string
	WebsiteURL string
	Timeout    time.Duration
}

// KhaltiGateway talks to Khalti's epayment/initiate and epayment/lookup endpoints.
type KhaltiGateway struct {
	config KhaltiConfig
	client *http.Client
	log    *logger.Logger
}

func NewKhaltiGateway(config KhaltiConfig, log *logger.Logger) *KhaltiGateway {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &KhaltiGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log.WithComponent("khalti"),
	}
}

func (g *KhaltiGateway) Name() string {
	return "khalti"
}

type khaltiCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type khaltiInitiateRequest struct {
	ReturnURL         string         `json:"return_url"`
	WebsiteURL        string         `json:"website_url"`
	Amount            int64          `json:"amount"`
	PurchaseOrderID   string         `json:"purchase_order_id"`
	PurchaseOrderName string         `json:"purchase_order_name"`
	CustomerInfo      khaltiCustomer `json:"customer_info"`
	MerchantExtra     string         `json:"merchant_extra,omitempty"`
	ProductDetails    []LineItem     `json:"product_details,omitempty"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
	ExpiresIn  int    `json:"expires_in"`
}

type khaltiLookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Fee           int64  `json:"fee"`
	Refunded      bool   `json:"refunded"`
}

// Initiate opens a Khalti payment session. Any transport failure or non-2xx
// answer is a GatewayError; the caller keeps the booking PENDING.
func (g *KhaltiGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	body := khaltiInitiateRequest{
		ReturnURL:         g.config.ReturnURL,
		WebsiteURL:        g.config.WebsiteURL,
		Amount:            req.Amount,
		PurchaseOrderID:   req.OrderID,
		PurchaseOrderName: req.OrderName,
		CustomerInfo: khaltiCustomer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		MerchantExtra:  req.IdempotencyKey,
		ProductDetails: req.Items,
	}

	status, raw, err := g.post(ctx, "/epayment/initiate/", body, req.IdempotencyKey)
	if err != nil {
		return nil, pkgErrors.Gateway("khalti initiate request failed", err)
	}
	if status < 200 || status >= 300 {
		return nil, pkgErrors.Gateway("khalti rejected initiate request", providerError(status, raw)).
			WithDetail("provider_status", status)
	}

	var decoded khaltiInitiateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgErrors.Gateway("khalti initiate response is not valid JSON", err)
	}
	if decoded.Pidx == "" || decoded.PaymentURL == "" {
		return nil, pkgErrors.Gateway("khalti initiate response is missing pidx or payment_url", nil)
	}

	resp := &InitiateResponse{Reference: decoded.Pidx, PaymentURL: decoded.PaymentURL}
	if decoded.ExpiresAt != "" {
		if at, err := time.Parse(time.RFC3339, decoded.ExpiresAt); err == nil {
			resp.ExpiresAt = at
		}
	}
	return resp, nil
}

// Verify looks the session up. A timeout, transport error, unexpected
// answer or unrecognized status is GatewayAmbiguous.
func (g *KhaltiGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	status, raw, err := g.post(ctx, "/epayment/lookup/", map[string]string{"pidx": reference}, "")
	if err != nil {
		return nil, pkgErrors.GatewayAmbiguous("khalti lookup request failed", err)
	}

	var decoded khaltiLookupResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	// Khalti answers some terminal states (e.g. Expired) with a 400 and a status body.
	if status < 200 || status >= 300 {
		if decodeErr == nil && NormalizeStatus(decoded.Status) != StatusUnknown {
			return g.toResult(reference, decoded, raw)
		}
		return nil, pkgErrors.GatewayAmbiguous("khalti lookup returned an unexpected response", providerError(status, raw)).
			WithDetail("provider_status", status)
	}
	if decodeErr != nil {
		return nil, pkgErrors.GatewayAmbiguous("khalti lookup response is not valid JSON", decodeErr)
	}
	return g.toResult(reference, decoded, raw)
}

func (g *KhaltiGateway) toResult(reference string, decoded khaltiLookupResponse, raw []byte) (*VerifyResult, error) {
	if decoded.Pidx == "" {
		decoded.Pidx = reference
	}
	result := &VerifyResult{
		Reference:     decoded.Pidx,
		Status:        NormalizeStatus(decoded.Status),
		RawStatus:     decoded.Status,
		Amount:        decoded.TotalAmount,
		TransactionID: decoded.TransactionID,
		Raw:           json.RawMessage(raw),
	}
	if result.Status == StatusUnknown {
		return result, pkgErrors.GatewayAmbiguous(fmt.Sprintf("unrecognized khalti status %q", decoded.Status), nil)
	}
	return result, nil
}

func (g *KhaltiGateway) post(ctx context.Context, path string, payload interface{}, idempotencyKey string) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "key "+g.config.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.log.WarnWithContext(ctx, "khalti request failed", err, map[string]interface{}{"path": path})
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	g.log.Debug("khalti response",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp.StatusCode, body, nil
}

func providerError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		return fmt.Errorf("http %d", status)
	}
	return fmt.Errorf("http %d: %s", status, msg)
}
