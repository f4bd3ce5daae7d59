package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HMACSignatureService implements ports.SignatureService with HMAC-SHA256
// and lowercase hex output.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	return hmac.Equal([]byte(s.Sign(secretKey, payload)), []byte(signature))
}

// webhookSigningString is what a refill webhook signature covers:
// EVENT_TYPE|UNIX_TIMESTAMP|DELIVERY_ID|EVENT_JSON.
func webhookSigningString(eventType string, timestamp int64, deliveryID string, eventJSON []byte) string {
	return fmt.Sprintf("%s|%d|%s|%s", eventType, timestamp, deliveryID, eventJSON)
}
