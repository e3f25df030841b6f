package payout

import "parcelmarket/internal/pkg/apperr"

var ErrNoPayoutAccount = apperr.State("PAYOUT_ACCOUNT_MISSING", "create a payout account first")
