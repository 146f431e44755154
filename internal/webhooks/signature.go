package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Headers set on every callback POST.
const (
	SignatureHeader = "X-Signature"
	EventTypeHeader = "X-Event-Type"
)

// SignHMAC returns the lowercase hex HMAC-SHA256 of body, the value of
// SignatureHeader.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(bodyMAC(secret, body))
}

// VerifyHMAC is the receiver side of SignHMAC.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	got, err := hex.DecodeString(provided)
	return err == nil && hmac.Equal(bodyMAC(secret, body), got)
}

func bodyMAC(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}
