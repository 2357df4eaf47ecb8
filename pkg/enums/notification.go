package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres. Each value
// corresponds to one domain event a member can be told about.
type NotificationType string

const (
	NotificationTypeWithdrawalRequested NotificationType = "withdrawal_requested"
	NotificationTypeWithdrawalDecided   NotificationType = "withdrawal_decided"
	NotificationTypeWithdrawalExecuted  NotificationType = "withdrawal_executed"
	NotificationTypeRefundRequested     NotificationType = "refund_requested"
	NotificationTypeRefundDecided       NotificationType = "refund_decided"
	NotificationTypeRefundExecuted      NotificationType = "refund_executed"
	NotificationTypeContribution        NotificationType = "contribution_received"
	NotificationTypeRecurringFailed     NotificationType = "recurring_contribution_failed"
)

func (n NotificationType) IsValid() bool {
	switch n {
	case NotificationTypeWithdrawalRequested,
		NotificationTypeWithdrawalDecided,
		NotificationTypeWithdrawalExecuted,
		NotificationTypeRefundRequested,
		NotificationTypeRefundDecided,
		NotificationTypeRefundExecuted,
		NotificationTypeContribution,
		NotificationTypeRecurringFailed:
		return true
	}
	return false
}

// NeedsAction reports whether the recipient is expected to vote.
func (n NotificationType) NeedsAction() bool {
	return n == NotificationTypeWithdrawalRequested || n == NotificationTypeRefundRequested
}

func ParseNotificationType(value string) (NotificationType, error) {
	if t := NotificationType(value); t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
