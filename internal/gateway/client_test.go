package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:    endpoint,
		PartnerCode: "MOMOTEST",
		AccessKey:   "access",
		SecretKey:   "secret",
		IPNURL:      "http://localhost:8080/api/v1/payments/callback",
		Timeout:     2 * time.Second,
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	s := NewSigner("secret", "")

	got := s.Canonical(map[string]string{"orderId": "ORDER_1", "amount": "1000", "accessKey": "k"})

	assert.Equal(t, "accessKey=k&amount=1000&orderId=ORDER_1", got)
	assert.Equal(t, "accessKey=k|amount=1000", NewSigner("secret", "|").Canonical(map[string]string{"amount": "1000", "accessKey": "k"}))
}

func TestSignAndVerify(t *testing.T) {
	s := NewSigner("key", "")
	params := map[string]string{"a": "1", "b": "2"}

	sig := s.Sign(params)
	assert.Len(t, sig, 64)
	assert.True(t, s.Verify(params, sig))
	assert.False(t, s.Verify(map[string]string{"a": "1", "b": "3"}, sig))
	assert.False(t, NewSigner("other", "").Verify(params, sig))
}

func TestCreatePaymentSendsSignedRequest(t *testing.T) {
	var received wireCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(CreateResponse{
			OrderID:    received.OrderID,
			ResultCode: 0,
			Message:    "Successful.",
			PayURL:     "https://pay.example/ORDER_1",
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	resp, err := client.CreatePayment(context.Background(), CreateRequest{
		OrderID:     "ORDER_1",
		RequestID:   "req-1",
		Amount:      288000,
		OrderInfo:   "2 tickets",
		RedirectURL: "http://localhost:3000/payment/result",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.ResultCode)
	assert.Equal(t, "https://pay.example/ORDER_1", resp.PayURL)
	assert.Equal(t, "captureWallet", received.RequestType)
	assert.Equal(t, int64(288000), received.Amount)

	expected := NewSigner("secret", "").Sign(map[string]string{
		"accessKey":   "access",
		"amount":      "288000",
		"extraData":   "",
		"ipnUrl":      "http://localhost:8080/api/v1/payments/callback",
		"orderId":     "ORDER_1",
		"orderInfo":   "2 tickets",
		"partnerCode": "MOMOTEST",
		"redirectUrl": "http://localhost:3000/payment/result",
		"requestId":   "req-1",
		"requestType": "captureWallet",
	})
	assert.Equal(t, expected, received.Signature)
}

func TestCreatePaymentReturnsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CreateResponse{ResultCode: 1005, Message: "Invalid amount"})
	}))
	defer srv.Close()

	resp, err := NewClient(testConfig(srv.URL)).CreatePayment(context.Background(), CreateRequest{OrderID: "ORDER_2"})
	require.NoError(t, err)
	assert.Equal(t, 1005, resp.ResultCode)
}

func TestCreatePaymentTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	_, err := NewClient(cfg).CreatePayment(context.Background(), CreateRequest{OrderID: "ORDER_3"})
	assert.Error(t, err)
}

func TestVerifyCallback(t *testing.T) {
	client := NewClient(testConfig("http://unused"))
	cb := &models.GatewayCallback{
		PartnerCode: "MOMOTEST",
		OrderID:     "ORDER_1",
		RequestID:   "req-1",
		Amount:      288000,
		TransID:     4088878653,
		ResultCode:  0,
		Message:     "Successful.",
		PayType:     "qr",
	}
	cb.Signature = client.SignCallback(cb)

	assert.True(t, client.VerifyCallback(cb))

	tampered := *cb
	tampered.Amount = 1
	assert.False(t, client.VerifyCallback(&tampered))
}
