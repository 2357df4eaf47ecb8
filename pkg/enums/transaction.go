package enums

import "fmt"

// TransactionType maps to the transaction_type enum in Postgres.
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypeContribution TransactionType = "contribution"
	TransactionTypeVote         TransactionType = "vote"
	TransactionTypeTransfer     TransactionType = "transfer"
	TransactionTypeRefund       TransactionType = "refund"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeContribution,
	TransactionTypeVote,
	TransactionTypeTransfer,
	TransactionTypeRefund,
}

// IsValid reports whether the type is a known ledger entry type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus maps to the transaction_status enum in Postgres.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
}

// IsValid reports whether the status is a known ledger status.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}

// PaymentProvider identifies the gateway that reported a payment.
type PaymentProvider string

const (
	PaymentProviderFlutterwave PaymentProvider = "flutterwave"
	PaymentProviderMonnify     PaymentProvider = "monnify"
	PaymentProviderWallet      PaymentProvider = "wallet"
	PaymentProviderInternal    PaymentProvider = "internal"
)
