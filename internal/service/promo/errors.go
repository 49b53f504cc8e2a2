package promo

import (
	"errors"
	"fmt"
)

// Sentinel errors for the promo service layer.
var (
	// ErrNotFound means the code or promo ID does not exist in scope.
	// Surfaced to the caller; not retryable.
	ErrNotFound = errors.New("promo code not found")

	// ErrContention means the redeem transaction lost a lock race and
	// exhausted its retries. The whole operation is safe to retry from the
	// caller; nothing was partially applied.
	ErrContention = errors.New("redemption contention, retry the operation")

	// ErrInvariant means the stored counters were found already violating
	// a cap at read time, meaning a prior bug or a bypassed write path. Fatal to
	// the operation; no repair is attempted.
	ErrInvariant = errors.New("promo usage counter invariant violated")

	// ErrDuplicateCode is returned by Create when the (restaurant, code)
	// unique constraint fires. The generator retries on it.
	ErrDuplicateCode = errors.New("promo code already exists for restaurant")
)

// RejectionReason is the user-presentable reason a validation or redemption
// was refused by business rules. Never retried automatically.
type RejectionReason string

const (
	ReasonInvalidOrExpired  RejectionReason = "invalid or expired"
	ReasonUsageLimitReached RejectionReason = "usage limit reached"
	ReasonAlreadyUsed       RejectionReason = "already used"
	ReasonMinSpendNotMet    RejectionReason = "minimum spend not met"
)

// RejectionError carries a business-rule rejection through the redeem path.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("promo rejected: %s", e.Reason)
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
