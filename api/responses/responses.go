package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// clientMessageCodes may surface the service's own message instead of the
// generic public one.
var clientMessageCodes = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeForbidden:     true,
	pkgerrors.CodeUnauthorized:  true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeIdempotency:   true,
	pkgerrors.CodeRateLimit:     true,
}

// WriteError renders err as the standard error envelope. Untyped errors are
// treated as internal and never leak their message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	status := pkgerrors.StatusOf(typed)

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: pkgerrors.IsRetryable(typed),
	}
	if m := typed.Message(); m != "" && clientMessageCodes[typed.Code()] {
		apiErr.Message = m
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logRequestError(ctx, logg, status, typed, err)
	}

	writeJSON(w, status, types.ErrorEnvelope{
		Error:     apiErr,
		RequestID: w.Header().Get(types.RequestIDHeader),
	})
}

func logRequestError(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error, err error) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"http_status": status,
	}
	for k, v := range dump.PG.Fields() {
		fields[k] = v
	}
	if dump.Hint != "" {
		fields["constraint_hint"] = dump.Hint
	}
	if dm, ok := typed.Details().(map[string]any); ok {
		if step, ok := dm["step"]; ok {
			fields["step"] = step
		}
	}

	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

// WriteWebhookAck acknowledges a processed provider notification.
func WriteWebhookAck(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, types.WebhookAck{Success: true, Message: message})
}

// WriteWebhookError answers a provider with the flat webhook body. Validation
// failures are 400, method errors 405, everything else 500 so the provider
// retries.
func WriteWebhookError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	if status == 0 {
		status = http.StatusInternalServerError
		switch typed.Code() {
		case pkgerrors.CodeValidation:
			status = http.StatusBadRequest
		case pkgerrors.CodeUnauthorized:
			status = http.StatusUnauthorized
		}
	}

	msg := pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
	if status < http.StatusInternalServerError && typed.Message() != "" {
		msg = typed.Message()
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"error_code":  string(typed.Code()),
			"http_status": status,
		})
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "webhook.error", err)
		} else {
			logg.Warn(ctx, "webhook.rejected: "+typed.Error())
		}
	}
	writeJSON(w, status, types.WebhookAck{Success: false, Message: msg, Code: string(typed.Code())})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
