package paymentwebhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// Event types accepted on the contribution webhook.
const (
	EventChargeCompleted       = "charge.completed"
	EventPaymentSuccess        = "payment.success"
	EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"
	EventVirtualAccountCredit  = "virtual_account.credit"
)

const paymentMethodAccountTransfer = "ACCOUNT_TRANSFER"

// Channel is how the money reached us. It decides whether a group
// contribution carries voting rights.
type Channel string

const (
	ChannelCard         Channel = "card"
	ChannelBankTransfer Channel = "bank_transfer"
)

// Event is a provider notification normalized to the fields ingestion needs.
type Event struct {
	Type         string
	Channel      Channel
	Provider     enums.PaymentProvider
	Reference    string
	Amount       decimal.Decimal
	Status       string
	Successful   bool
	GroupID      *uuid.UUID
	UserID       *uuid.UUID
	PayerEmail   string
	PayerName    string
	PayerAccount string
	Data         dbtypes.JSON
}

// payload fields are read from a loose map because providers disagree on
// casing and nesting.
type envelope struct {
	Event     string          `json:"event"`
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	EventData json.RawMessage `json:"eventData"`
}

// ParseEvent decodes a webhook body. Unknown event types and payloads without
// a reference are validation errors.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}

	eventType := firstNonEmpty(env.Event, env.Type, env.EventType)
	raw := env.Data
	if len(raw) == 0 {
		raw = env.EventData
	}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook data missing")
	}

	data, err := decodeObject(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook data")
	}

	event := &Event{Type: eventType, Data: dbtypes.JSON(raw)}
	switch eventType {
	case EventChargeCompleted, EventPaymentSuccess:
		event.Channel = ChannelCard
		event.Provider = enums.PaymentProviderFlutterwave
	case EventSuccessfulTransaction:
		event.Provider = enums.PaymentProviderMonnify
		event.Channel = ChannelCard
		if strings.EqualFold(stringField(data, "paymentMethod", "payment_method"), paymentMethodAccountTransfer) {
			event.Channel = ChannelBankTransfer
		}
	case EventVirtualAccountCredit:
		event.Channel = ChannelBankTransfer
		event.Provider = enums.PaymentProviderMonnify
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported event type").WithDetails(map[string]any{
			"event": eventType,
		})
	}

	event.Reference = firstNonEmpty(
		stringField(data, "flw_ref", "flwRef"),
		stringField(data, "tx_ref", "txRef"),
		stringField(data, "payment_reference", "paymentReference"),
		stringField(data, "transaction_reference", "transactionReference"),
	)
	if event.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference missing")
	}

	event.Amount, err = amountField(data, "amount", "amountPaid", "amount_paid")
	if err != nil {
		return nil, err
	}

	event.Status = strings.ToLower(stringField(data, "status", "paymentStatus", "payment_status"))
	event.Successful = isSuccessStatus(event.Status)

	meta := objectField(data, "meta", "metadata", "metaData")
	if event.GroupID, err = uuidField(meta, "group_id", "groupId"); err != nil {
		return nil, err
	}
	if event.UserID, err = uuidField(meta, "user_id", "userId"); err != nil {
		return nil, err
	}
	if event.UserID == nil {
		if event.UserID, err = uuidField(data, "user_id", "userId"); err != nil {
			return nil, err
		}
	}

	customer := objectField(data, "customer")
	event.PayerEmail = firstNonEmpty(stringField(customer, "email"), stringField(data, "customerEmail", "customer_email"))
	event.PayerName = firstNonEmpty(stringField(customer, "name"), stringField(data, "customerName", "customer_name"))
	event.PayerAccount = firstNonEmpty(
		stringField(data, "account_number", "accountNumber", "sender_account_number"),
		stringField(firstObject(data, "paymentSourceInformation"), "accountNumber"),
	)

	if event.Successful && !event.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return event, nil
}

// IsCredit reports whether the event is a bank transfer into a virtual account.
func (e *Event) IsCredit() bool {
	return e.Channel == ChannelBankTransfer
}

// An empty status is treated as success because the event name already says
// the payment settled.
func isSuccessStatus(status string) bool {
	switch status {
	case "", "successful", "success", "paid", "completed":
		return true
	default:
		return false
	}
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func amountField(obj map[string]any, keys ...string) (decimal.Decimal, error) {
	for _, key := range keys {
		var text string
		switch v := obj[key].(type) {
		case json.Number:
			text = v.String()
		case string:
			text = strings.TrimSpace(v)
		default:
			continue
		}
		if text == "" {
			continue
		}
		amount, err := decimal.NewFromString(text)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
		}
		return amount.Round(2), nil
	}
	return decimal.Zero, nil
}

func uuidField(obj map[string]any, keys ...string) (*uuid.UUID, error) {
	raw := stringField(obj, keys...)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+keys[0])
	}
	return &id, nil
}

func objectField(obj map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if nested, ok := obj[key].(map[string]any); ok {
			return nested
		}
	}
	return nil
}

func firstObject(obj map[string]any, key string) map[string]any {
	switch v := obj[key].(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) > 0 {
			if nested, ok := v[0].(map[string]any); ok {
				return nested
			}
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
