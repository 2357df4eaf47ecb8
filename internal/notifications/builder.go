package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/outbox/payloads"
)

// Build maps a decoded domain payload to one notification per recipient.
// Unknown payloads produce nothing.
func Build(eventID uuid.UUID, payload any) []models.Notification {
	var out []models.Notification
	add := func(userID uuid.UUID, kind enums.NotificationType, title, message, link string) {
		if userID == uuid.Nil {
			return
		}
		n := models.Notification{
			UserID:  userID,
			Type:    kind,
			Title:   title,
			Message: message,
			Link:    stringPtr(link),
		}
		if eventID != uuid.Nil {
			id := eventID
			n.EventID = &id
		}
		out = append(out, n)
	}

	switch p := payload.(type) {
	case *payloads.WithdrawalRequestCreatedEvent:
		link := fmt.Sprintf("/groups/%s/withdrawals/%s", p.GroupID, p.RequestID)
		msg := fmt.Sprintf("A withdrawal of %s was requested from %s. Vote before %s.",
			p.Amount.StringFixed(2), p.GroupName, p.Deadline.UTC().Format("02 Jan 2006 15:04 MST"))
		for _, voter := range uniqueExcept(p.VoterIDs, p.RequesterID) {
			add(voter, enums.NotificationTypeWithdrawalRequested, "Withdrawal vote needed", msg, link)
		}
	case *payloads.WithdrawalDecidedEvent:
		link := fmt.Sprintf("/groups/%s/withdrawals/%s", p.GroupID, p.RequestID)
		title := "Withdrawal " + string(p.Status)
		msg := fmt.Sprintf("Your withdrawal of %s from %s was %s (%d for, %d against).",
			p.Amount.StringFixed(2), p.GroupName, p.Status, p.Approvals, p.Rejections)
		if p.Expired {
			msg = fmt.Sprintf("Voting on your withdrawal of %s from %s closed without enough approvals.",
				p.Amount.StringFixed(2), p.GroupName)
		}
		add(p.RequesterID, enums.NotificationTypeWithdrawalDecided, title, msg, link)
	case *payloads.WithdrawalExecutedEvent:
		add(p.RequesterID, enums.NotificationTypeWithdrawalExecuted, "Withdrawal paid",
			fmt.Sprintf("%s has been credited to your wallet.", p.Amount.StringFixed(2)),
			fmt.Sprintf("/wallet/transactions/%s", p.TransactionID))
	case *payloads.RefundRequestCreatedEvent:
		link := fmt.Sprintf("/groups/%s/refunds/%s", p.GroupID, p.RequestID)
		msg := fmt.Sprintf("A %s refund was requested for %s. Vote before %s.",
			p.RefundType, p.GroupName, p.VotingDeadline.UTC().Format("02 Jan 2006 15:04 MST"))
		if p.RefundType == enums.RefundTypePartial {
			msg = fmt.Sprintf("A %d%% refund was requested for %s. Vote before %s.",
				p.Percentage, p.GroupName, p.VotingDeadline.UTC().Format("02 Jan 2006 15:04 MST"))
		}
		for _, voter := range uniqueExcept(p.VoterIDs, p.RequesterID) {
			add(voter, enums.NotificationTypeRefundRequested, "Refund vote needed", msg, link)
		}
	case *payloads.RefundDecidedEvent:
		link := fmt.Sprintf("/groups/%s/refunds/%s", p.GroupID, p.RequestID)
		msg := fmt.Sprintf("The refund for %s was %s with %d of %d eligible votes.",
			p.GroupName, p.Status, p.VotesFor, p.Eligible)
		if p.Expired {
			msg = fmt.Sprintf("Voting on the refund for %s closed without reaching the threshold.", p.GroupName)
		}
		add(p.RequesterID, enums.NotificationTypeRefundDecided, "Refund "+string(p.Status), msg, link)
	case *payloads.RefundExecutedEvent:
		link := fmt.Sprintf("/groups/%s/refunds/%s", p.GroupID, p.RequestID)
		for _, recipient := range uniqueExcept(p.RecipientIDs, uuid.Nil) {
			add(recipient, enums.NotificationTypeRefundExecuted, "Refund paid",
				fmt.Sprintf("Your refund from %s has been credited to your wallet.", p.GroupName), link)
		}
	case *payloads.ContributionReceivedEvent:
		if p.UserID != nil && *p.UserID == p.CreatorID {
			break
		}
		add(p.CreatorID, enums.NotificationTypeContribution, "New contribution",
			fmt.Sprintf("%s received a contribution of %s.", p.GroupName, p.Amount.StringFixed(2)),
			fmt.Sprintf("/groups/%s", p.GroupID))
	case *payloads.RecurringContributionFailedEvent:
		add(p.UserID, enums.NotificationTypeRecurringFailed, "Scheduled contribution failed",
			fmt.Sprintf("Your scheduled contribution of %s did not go through: %s", p.Amount.StringFixed(2), p.Reason),
			fmt.Sprintf("/recurring/%s", p.RecurringID))
	}
	return out
}

func uniqueExcept(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == skip || id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func stringPtr(value string) *string {
	return &value
}
