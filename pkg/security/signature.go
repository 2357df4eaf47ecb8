package security

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Provider signature headers.
const (
	FlutterwaveHashHeader  = "verif-hash"
	MonnifySignatureHeader = "monnify-signature"
)

// WebhookVerifier checks provider signatures. A provider whose secret is empty
// is not verified.
type WebhookVerifier struct {
	flutterwaveHash string
	monnifySecret   string
}

func NewWebhookVerifier(flutterwaveHash, monnifySecret string) *WebhookVerifier {
	return &WebhookVerifier{
		flutterwaveHash: strings.TrimSpace(flutterwaveHash),
		monnifySecret:   strings.TrimSpace(monnifySecret),
	}
}

// Enabled reports whether any provider secret is configured.
func (v *WebhookVerifier) Enabled() bool {
	return v != nil && (v.flutterwaveHash != "" || v.monnifySecret != "")
}

// VerifyFlutterwave compares the verif-hash header with the configured hash.
func (v *WebhookVerifier) VerifyFlutterwave(header string) bool {
	if v == nil || v.flutterwaveHash == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(header)), []byte(v.flutterwaveHash)) == 1
}

// VerifyMonnify checks the hex HMAC-SHA512 of the raw body.
func (v *WebhookVerifier) VerifyMonnify(body []byte, header string) bool {
	if v == nil || v.monnifySecret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}
	return hmac.Equal(got, SignMonnify(body, v.monnifySecret))
}

// SignMonnify returns the raw HMAC-SHA512 of body under secret.
func SignMonnify(body []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
