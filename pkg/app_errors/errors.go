package apperrors

import "errors"

var (
	// inventory
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrSeatConflict      = errors.New("seat conflict")
	ErrSeatCountMismatch = errors.New("seat count mismatch")
	ErrExceedsMaxPerUser = errors.New("exceeds max per user")

	// promo
	ErrPromoInactive     = errors.New("promo code inactive")
	ErrPromoExpired      = errors.New("promo code expired")
	ErrPromoLimitReached = errors.New("promo code limit reached")
	ErrPromoNotFound     = errors.New("promo code not found")

	// validation / admission
	ErrTicketAlreadyUsed = errors.New("ticket already used")
	ErrWrongEvent        = errors.New("ticket belongs to another event")
	ErrInvalidTicketState = errors.New("ticket not in admissible state")
	ErrAccessDenied      = errors.New("scanner access denied")

	// holds
	ErrHoldExpired  = errors.New("hold expired")
	ErrHoldNotFound = errors.New("hold not found")

	// lookup
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrInfluencerNotFound = errors.New("influencer not found")

	// generic
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateCode       = errors.New("code already exists")
	ErrAlreadyClaimed      = errors.New("already claimed ticket for this event")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrInternalServerError = errors.New("internal server error")
)
