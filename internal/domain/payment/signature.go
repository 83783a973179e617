package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign computes the gateway confirmation signature for a payment:
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + gatewayPaymentID)).
func Sign(secret []byte, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it with the
// provided one in constant time. Timing-attack resistance is a correctness
// requirement here, not an optimization.
func VerifySignature(secret []byte, gatewayOrderID, gatewayPaymentID, provided string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(gatewayPaymentID))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}
