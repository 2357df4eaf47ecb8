package refunds

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

type payout struct {
	Contributor models.Contributor
	Amount      decimal.Decimal
}

// planPayouts sizes each stake's refund as pct of what the member has not
// already had back: total_contributed minus earlier refunds keyed by user.
// When the shares exceed what the pot still holds they are scaled down
// proportionally. Amounts are truncated to kobo so the plan never exceeds
// available.
func planPayouts(stakes []models.Contributor, refunded map[uuid.UUID]decimal.Decimal, pct int, available decimal.Decimal) []payout {
	rate := decimal.NewFromInt(int64(pct)).Div(hundred)

	plan := make([]payout, 0, len(stakes))
	total := decimal.Zero
	for _, stake := range stakes {
		base := stake.TotalContributed
		if stake.UserID != nil {
			base = base.Sub(refunded[*stake.UserID])
		}
		if !base.IsPositive() {
			continue
		}
		share := base.Mul(rate).Truncate(2)
		if !share.IsPositive() {
			continue
		}
		plan = append(plan, payout{Contributor: stake, Amount: share})
		total = total.Add(share)
	}

	if total.GreaterThan(available) && total.IsPositive() {
		for i := range plan {
			plan[i].Amount = plan[i].Amount.Mul(available).Div(total).Truncate(2)
		}
	}
	return plan
}
