package sender

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature headers sent with signed deliveries. Both carry the same
// HMAC-SHA256 digest; the prefixed form exists for subscriber libraries that
// expect the sha256= convention.
const (
	SignatureHeader       = "X-Webhook-Signature"
	SignatureHeaderSHA256 = "X-Webhook-Signature-256"
)

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
// Exposed for subscriber-side verification in tests and tooling.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
