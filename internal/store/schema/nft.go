package schema

import "time"

// NFT represents the nfts table - a collectible with immutable metadata and a mutable sale state
type NFT struct {
	// ID is the sequential token identifier allocated from the next_token_id counter
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement:false" msgpack:"id"`
	// Owner is the minting account
	Owner string `gorm:"column:owner;not null;type:text;index" msgpack:"owner"`
	// Title is the token title
	Title string `gorm:"column:title;not null;type:text" msgpack:"title"`
	// Description is the token description
	Description string `gorm:"column:description;not null;type:text" msgpack:"description"`
	// Media is a reference to the token media
	Media string `gorm:"column:media;not null;type:text" msgpack:"media"`
	// ForSale indicates the token is listed
	ForSale bool `gorm:"column:for_sale;not null;default:false" msgpack:"for_sale"`
	// Price is the listed price as a decimal string, set iff ForSale
	Price *string `gorm:"column:price;type:numeric(39,0)" msgpack:"price"`
	// CreatedAt is the timestamp when the token was minted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz" msgpack:"created_at"`
	// UpdatedAt is the timestamp of the last listing change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz" msgpack:"updated_at"`
}

// TableName specifies the table name for the NFT model
func (NFT) TableName() string {
	return "nfts"
}
