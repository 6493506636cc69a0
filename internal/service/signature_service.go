package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// HMACSignatureService signs outcome webhooks with HMAC-SHA256. It implements
// ports.SignatureService.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// SignedContent is what a webhook signature covers: "<unix-seconds>.<body>".
func SignedContent(at time.Time, body []byte) (timestamp, content string) {
	timestamp = strconv.FormatInt(at.Unix(), 10)
	return timestamp, timestamp + "." + string(body)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	return hex.EncodeToString(s.mac(secretKey, payload))
}

// Verify reports whether signature is the hex HMAC of payload. The comparison
// runs in constant time.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(s.mac(secretKey, payload), got)
}

func (s *HMACSignatureService) mac(secretKey, payload string) []byte {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
