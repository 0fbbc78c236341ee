package domain

import "errors"

var (
	// ErrNotFound is returned when a campaign or token does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller lacks the role an operation requires
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientFee is returned when a campaign is created with less than the listing fee attached
	ErrInsufficientFee = errors.New("insufficient fee")

	// ErrInsufficientPayment is returned when a purchase attaches less than the listed price
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrCampaignEnded is returned when donating after the campaign deadline
	ErrCampaignEnded = errors.New("campaign has ended")

	// ErrNotForSale is returned when buying a token that is not listed
	ErrNotForSale = errors.New("not for sale")

	// ErrPriceMissing is returned when a listed token carries no price
	ErrPriceMissing = errors.New("price not set")

	// ErrSelfPurchase is returned when the owner tries to buy their own token
	ErrSelfPurchase = errors.New("cannot buy own token")

	// ErrOverflow is returned when amount arithmetic would exceed the representable range
	ErrOverflow = errors.New("amount overflow")

	// ErrInvalidAmount is returned when an amount is not an unsigned decimal within range
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAccount is returned when an account identity is malformed
	ErrInvalidAccount = errors.New("invalid account")

	// ErrNotInitialized is returned when the platform wallet has not been set up yet
	ErrNotInitialized = errors.New("ledger not initialized")

	// ErrAlreadyInitialized is returned when initializing a ledger twice
	ErrAlreadyInitialized = errors.New("ledger already initialized")
)
