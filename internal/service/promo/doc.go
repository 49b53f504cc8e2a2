// Package promo implements promotional code generation, validation, and
// redemption.
//
// Validation is a side-effect-free preview; redemption is the committing
// mutation. A validate result is advisory only and can be stale by the time
// redeem executes, so the cap checks are re-run inside the redeem
// transaction, which must insert the redemption row and increment the cached
// usage counter atomically.
//
// Repository implementations live in repository/postgres/.
package promo
