package security_test

import (
	"encoding/hex"
	"testing"

	"github.com/angelmondragon/kolo-backend/pkg/security"
)

func TestWebhookVerifierDisabledWithoutSecrets(t *testing.T) {
	v := security.NewWebhookVerifier(" ", "")
	if v.Enabled() {
		t.Fatal("expected verifier disabled")
	}
	if !v.VerifyFlutterwave("anything") || !v.VerifyMonnify([]byte("{}"), "") {
		t.Fatal("disabled verifier must accept every delivery")
	}
}

func TestVerifyFlutterwaveHash(t *testing.T) {
	v := security.NewWebhookVerifier("s3cret", "")
	if !v.Enabled() {
		t.Fatal("expected verifier enabled")
	}
	if !v.VerifyFlutterwave("s3cret") {
		t.Fatal("matching hash rejected")
	}
	if v.VerifyFlutterwave("wrong") || v.VerifyFlutterwave("") {
		t.Fatal("mismatched hash accepted")
	}
}

func TestVerifyMonnifySignature(t *testing.T) {
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION"}`)
	v := security.NewWebhookVerifier("", "mnfy-key")
	sig := hex.EncodeToString(security.SignMonnify(body, "mnfy-key"))

	if !v.VerifyMonnify(body, sig) {
		t.Fatal("valid signature rejected")
	}
	if v.VerifyMonnify([]byte(`{"eventType":"tampered"}`), sig) {
		t.Fatal("signature accepted for a different body")
	}
	if v.VerifyMonnify(body, "not-hex") {
		t.Fatal("malformed signature accepted")
	}
}
