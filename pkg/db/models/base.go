package models

import (
	"github.com/google/uuid"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, used by sqlite auto-migration and tests.
func All() []any {
	return []any{
		&Profile{},
		&ContributionGroup{},
		&Contributor{},
		&Transaction{},
		&WithdrawalRequest{},
		&GroupRefundRequest{},
		&RecurringContribution{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
