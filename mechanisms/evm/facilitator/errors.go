// Package facilitator implements the upto verifier and settler: the pure
// predicate and on-chain write path that back the facilitator's /verify
// and /settle endpoints.
package facilitator

// Verification error tags, returned as VerifyResult.InvalidReason.
const (
	ErrInvalidSpender           = "invalid_spender"
	ErrInvalidRecipient         = "invalid_recipient"
	ErrPermit2DeadlineExpired   = "permit2_deadline_expired"
	ErrPermit2NotYetValid       = "permit2_not_yet_valid"
	ErrInsufficientAuthorized   = "insufficient_authorized_amount"
	ErrInvalidPermit2Signature  = "invalid_permit2_signature"
	ErrSignatureVerification    = "signature_verification_failed"
	ErrPermit2AllowanceRequired = "permit2_allowance_required"
	ErrAllowanceCheckFailed     = "allowance_check_failed"
	ErrInsufficientBalance      = "insufficient_balance"
	ErrBalanceCheckFailed       = "balance_check_failed"
)

// Settlement error tags, returned as SettleResult.Error.
const (
	ErrSettlementExceedsAuthorization = "settlement_exceeds_authorization"
	ErrTransactionReverted            = "transaction_reverted"
)
