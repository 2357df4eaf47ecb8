package webhooks

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	paymentwebhook "github.com/angelmondragon/kolo-backend/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/security"
	"github.com/angelmondragon/kolo-backend/pkg/types"
)

type fakePaymentService struct {
	calls  int
	err    error
	events []*paymentwebhook.Event
}

func (f *fakePaymentService) HandleEvent(_ context.Context, event *paymentwebhook.Event) (*paymentwebhook.Result, error) {
	f.calls++
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return &paymentwebhook.Result{Status: paymentwebhook.ResultProcessed, Message: "payment recorded"}, nil
}

const chargePayload = `{"event":"charge.completed","data":{"flw_ref":"FLW-1","amount":5000,"status":"successful","meta":{"user_id":"6f1c1c1e-8a39-4c1e-9b1a-3f0d6f0b8a11"}}}`

func serve(t *testing.T, handler http.Handler, method, body string, headers map[string]string) (*httptest.ResponseRecorder, types.WebhookAck) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/webhooks/contribution", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var ack types.WebhookAck
	if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, ack
}

func TestContributionWebhookSuccess(t *testing.T) {
	svc := &fakePaymentService{}
	rec, ack := serve(t, ContributionWebhook(svc, nil, nil), http.MethodPost, chargePayload, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ack.Success || ack.Message != "payment recorded" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if svc.calls != 1 || svc.events[0].Reference != "FLW-1" {
		t.Fatalf("expected event forwarded once, got %d", svc.calls)
	}
}

func TestContributionWebhookRejectsNonPost(t *testing.T) {
	svc := &fakePaymentService{}
	rec, ack := serve(t, ContributionWebhook(svc, nil, nil), http.MethodGet, "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if ack.Success || svc.calls != 0 {
		t.Fatalf("non-POST must not be processed")
	}
}

func TestContributionWebhookUnknownType(t *testing.T) {
	svc := &fakePaymentService{}
	rec, ack := serve(t, ContributionWebhook(svc, nil, nil), http.MethodPost, `{"event":"transfer.completed","data":{"flw_ref":"x","amount":1}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ack.Success || ack.Message != "unsupported event type" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestContributionWebhookInternalError(t *testing.T) {
	svc := &fakePaymentService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	rec, ack := serve(t, ContributionWebhook(svc, nil, nil), http.MethodPost, chargePayload, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ack.Success {
		t.Fatalf("expected failure ack")
	}
}

func TestContributionWebhookFlutterwaveHash(t *testing.T) {
	svc := &fakePaymentService{}
	handler := ContributionWebhook(svc, security.NewWebhookVerifier("hash-123", ""), nil)

	rec, _ := serve(t, handler, http.MethodPost, chargePayload, map[string]string{security.FlutterwaveHashHeader: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad hash, got %d", rec.Code)
	}

	rec, _ = serve(t, handler, http.MethodPost, chargePayload, map[string]string{security.FlutterwaveHashHeader: "hash-123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid hash, got %d", rec.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one processed delivery, got %d", svc.calls)
	}
}

func TestContributionWebhookMonnifySignature(t *testing.T) {
	body := `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"paymentReference":"MNFY-1","amountPaid":"100.00","paymentMethod":"ACCOUNT_TRANSFER","metaData":{"user_id":"6f1c1c1e-8a39-4c1e-9b1a-3f0d6f0b8a11"}}}`
	svc := &fakePaymentService{}
	handler := ContributionWebhook(svc, security.NewWebhookVerifier("", "mnfy"), nil)
	sig := hex.EncodeToString(security.SignMonnify([]byte(body), "mnfy"))

	rec, _ := serve(t, handler, http.MethodPost, body, map[string]string{security.MonnifySignatureHeader: sig})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec, _ = serve(t, handler, http.MethodPost, body, map[string]string{security.MonnifySignatureHeader: "00"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
