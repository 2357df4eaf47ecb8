package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/kolo-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/kolo-backend/internal/webhooks/payments"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/security"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event *paymentwebhook.Event) (*paymentwebhook.Result, error)
}

type signatureVerifier interface {
	VerifyFlutterwave(header string) bool
	VerifyMonnify(body []byte, header string) bool
}

// ContributionWebhook ingests Flutterwave and Monnify payment notifications.
// verifier may be nil when no provider secret is configured.
func ContributionWebhook(svc PaymentWebhookService, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			responses.WriteWebhookError(ctx, logg, w, http.StatusMethodNotAllowed, pkgerrors.New(pkgerrors.CodeValidation, "method not allowed"))
			return
		}
		if svc == nil {
			responses.WriteWebhookError(ctx, logg, w, 0, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		event, err := paymentwebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, 0, err)
			return
		}

		if verifier != nil && !verified(verifier, event.Provider, payload, r.Header) {
			responses.WriteWebhookError(ctx, logg, w, 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		result, err := svc.HandleEvent(ctx, event)
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, 0, err)
			return
		}
		responses.WriteWebhookAck(w, result.Message)
	}
}

func verified(v signatureVerifier, provider enums.PaymentProvider, payload []byte, header http.Header) bool {
	switch provider {
	case enums.PaymentProviderMonnify:
		return v.VerifyMonnify(payload, header.Get(security.MonnifySignatureHeader))
	default:
		return v.VerifyFlutterwave(header.Get(security.FlutterwaveHashHeader))
	}
}
