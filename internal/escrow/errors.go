package escrow

import "fmt"

var (
	// ErrDuplicateDeal is returned by Lock when the identifier is still
	// held by a deal with escrowed value
	ErrDuplicateDeal = fmt.Errorf("deal already exists for this id")
	// ErrInsufficientFunds is returned by Lock when the inbound transfer
	// fails, commonly due to buyer balance or allowance
	ErrInsufficientFunds = fmt.Errorf("insufficient funds or allowance")
	// ErrUnauthorized is returned when the caller identity does not match
	// the required role for the operation
	ErrUnauthorized = fmt.Errorf("caller is not authorized for this operation")
	// ErrOutOfOrder is returned by signing operations invoked before
	// their preceding role has signed
	ErrOutOfOrder = fmt.Errorf("signing precondition not met")
	// ErrMissingAuthorization is returned by Finalize when not all three
	// roles have signed
	ErrMissingAuthorization = fmt.Errorf("authorization incomplete")
	// ErrAlreadySettled is returned by Finalize when the deal has been
	// paid out already
	ErrAlreadySettled = fmt.Errorf("deal already settled")
	// ErrNegativeAmount is returned by Lock for negative or missing
	// amount inputs
	ErrNegativeAmount = fmt.Errorf("amounts must be non-negative")
	// ErrPayoutTransfer wraps outbound transfer failures during payout.
	// The deal stays settled, the unpaid value stays in custody
	ErrPayoutTransfer = fmt.Errorf("payout transfer failed")
	// ErrDealNotFound is returned by read operations for ids that never
	// held a deal. Mutating operations return ErrUnauthorized instead so
	// probing cannot distinguish a missing deal from a foreign one
	ErrDealNotFound = fmt.Errorf("deal not found")
)
