package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// Credit adds amount to the user's wallet inside the caller's transaction,
// opening a profile when the user has none yet.
func Credit(ctx context.Context, repo Repository, userID uuid.UUID, amount decimal.Decimal) (*models.Profile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	amount = amount.Round(2)

	profile, err := repo.FindByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if profile == nil {
		profile = &models.Profile{ID: userID, WalletBalance: amount}
		if err := repo.Create(ctx, profile); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open wallet")
		}
		return profile, nil
	}

	profile.WalletBalance = profile.WalletBalance.Add(amount)
	if err := repo.UpdateBalance(ctx, userID, profile.WalletBalance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}
	return profile, nil
}

// Debit removes amount from the user's wallet inside the caller's transaction.
// The balance never goes negative.
func Debit(ctx context.Context, repo Repository, userID uuid.UUID, amount decimal.Decimal) (*models.Profile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	amount = amount.Round(2)

	profile, err := repo.FindByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if profile == nil || profile.WalletBalance.LessThan(amount) {
		available := decimal.Zero
		if profile != nil {
			available = profile.WalletBalance
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient wallet balance").WithDetails(map[string]any{
			"available": available.StringFixed(2),
			"required":  amount.StringFixed(2),
		})
	}

	profile.WalletBalance = profile.WalletBalance.Sub(amount)
	if err := repo.UpdateBalance(ctx, userID, profile.WalletBalance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
	}
	return profile, nil
}
