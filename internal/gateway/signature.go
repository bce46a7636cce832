package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"booking-service/internal/models"
)

// DefaultSeparator joins key=value pairs in the canonical string.
const DefaultSeparator = "&"

// Signer produces and checks HMAC-SHA256 signatures over canonical parameter strings
type Signer struct {
	secret    []byte
	separator string
}

// NewSigner creates a signer for the shared secret. An empty separator
// falls back to DefaultSeparator.
func NewSigner(secret, separator string) *Signer {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Signer{secret: []byte(secret), separator: separator}
}

// Canonical renders params as key=value pairs in ascending key order
func (s *Signer) Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, s.separator)
}

// Sign returns the lowercase hex HMAC of the canonical form of params
func (s *Signer) Sign(params map[string]string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.Canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the expected one in constant time
func (s *Signer) Verify(params map[string]string, signature string) bool {
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// CallbackParams returns the signed fields of a gateway notification
func CallbackParams(accessKey string, cb *models.GatewayCallback) map[string]string {
	return map[string]string{
		"accessKey":    accessKey,
		"amount":       strconv.FormatInt(cb.Amount, 10),
		"extraData":    cb.ExtraData,
		"message":      cb.Message,
		"orderId":      cb.OrderID,
		"orderInfo":    cb.OrderInfo,
		"orderType":    cb.OrderType,
		"partnerCode":  cb.PartnerCode,
		"payType":      cb.PayType,
		"requestId":    cb.RequestID,
		"responseTime": strconv.FormatInt(cb.ResponseTime, 10),
		"resultCode":   strconv.Itoa(cb.ResultCode),
		"transId":      strconv.FormatInt(cb.TransID, 10),
	}
}
