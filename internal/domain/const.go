package domain

const (
	// CREATOR_SHARE_PERCENT is the share of every donation paid to the campaign creator.
	// The platform wallet receives the remainder.
	CREATOR_SHARE_PERCENT = 90

	// DEFAULT_LISTING_FEE is the minimum payment to create a campaign (0.01 of a 24-decimal native unit)
	DEFAULT_LISTING_FEE = "10000000000000000000000"

	// Store counter names
	COUNTER_CAMPAIGN = "next_campaign_id"
	COUNTER_TOKEN    = "next_token_id"

	// PLATFORM_WALLET_KEY is the key-value entry holding the platform wallet account
	PLATFORM_WALLET_KEY = "platform_wallet"
)
