package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const (
	requestTypeCaptureWallet = "captureWallet"
	defaultLang              = "vi"

	// ResultCodeSuccess is the gateway result code for a successful operation
	ResultCodeSuccess = 0
)

// Config holds the merchant credentials and endpoints of the gateway
type Config struct {
	Endpoint    string
	PartnerCode string
	PartnerName string
	StoreID     string
	AccessKey   string
	SecretKey   string
	IPNURL      string
	Separator   string
	Timeout     time.Duration
}

// CreateRequest describes a payment intent to open with the gateway
type CreateRequest struct {
	OrderID     string
	RequestID   string
	Amount      int64
	OrderInfo   string
	RedirectURL string
	ExtraData   string
}

// CreateResponse is the gateway reply to a payment intent
type CreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
}

type wireCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	PartnerName string `json:"partnerName,omitempty"`
	StoreID     string `json:"storeId,omitempty"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// Client talks to a MoMo-style payment gateway
type Client struct {
	cfg        Config
	signer     *Signer
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		signer:     NewSigner(cfg.SecretKey, cfg.Separator),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     util.GetLogger(),
	}
}

// CreatePayment submits a signed payment intent and returns the gateway reply.
// A non-zero result code is returned as a normal response, transport failures as errors.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	ctx, span := util.StartSpan(ctx, "GatewayClient.CreatePayment")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	wire := wireCreateRequest{
		PartnerCode: c.cfg.PartnerCode,
		PartnerName: c.cfg.PartnerName,
		StoreID:     c.cfg.StoreID,
		RequestID:   req.RequestID,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: req.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: requestTypeCaptureWallet,
		ExtraData:   req.ExtraData,
		Lang:        defaultLang,
	}
	wire.Signature = c.signer.Sign(map[string]string{
		"accessKey":   c.cfg.AccessKey,
		"amount":      strconv.FormatInt(wire.Amount, 10),
		"extraData":   wire.ExtraData,
		"ipnUrl":      wire.IPNURL,
		"orderId":     wire.OrderID,
		"orderInfo":   wire.OrderInfo,
		"partnerCode": wire.PartnerCode,
		"redirectUrl": wire.RedirectURL,
		"requestId":   wire.RequestID,
		"requestType": wire.RequestType,
	})

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	util.GatewayRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response (status %d): %w", resp.StatusCode, err)
	}

	c.logger.Info("Gateway payment created",
		zap.String("order_id", req.OrderID),
		zap.Int("result_code", out.ResultCode),
		zap.String("message", out.Message))

	return &out, nil
}

// VerifyCallback checks the signature of a gateway notification
func (c *Client) VerifyCallback(cb *models.GatewayCallback) bool {
	return c.signer.Verify(CallbackParams(c.cfg.AccessKey, cb), cb.Signature)
}

// SignCallback computes the signature the gateway would attach to cb
func (c *Client) SignCallback(cb *models.GatewayCallback) string {
	return c.signer.Sign(CallbackParams(c.cfg.AccessKey, cb))
}
