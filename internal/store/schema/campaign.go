package schema

import "time"

// Campaign represents the campaigns table - a fundraising record with a running donation total
type Campaign struct {
	// ID is the sequential campaign identifier allocated from the next_campaign_id counter
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement:false" msgpack:"id"`
	// Creator is the account receiving the creator share of every donation
	Creator string `gorm:"column:creator;not null;type:text;index" msgpack:"creator"`
	// Image is a reference to the campaign image
	Image string `gorm:"column:image;not null;type:text" msgpack:"image"`
	// Title is the campaign title
	Title string `gorm:"column:title;not null;type:text" msgpack:"title"`
	// Description is the campaign description
	Description string `gorm:"column:description;not null;type:text" msgpack:"description"`
	// Target is the fundraising goal as a decimal string
	Target string `gorm:"column:target;not null;type:numeric(39,0)" msgpack:"target"`
	// Deadline is the last instant (nanoseconds since the Unix epoch) donations are accepted
	Deadline string `gorm:"column:deadline;not null;type:numeric(20,0)" msgpack:"deadline"`
	// AmountCollected is the sum of all donations as a decimal string
	AmountCollected string `gorm:"column:amount_collected;not null;type:numeric(39,0);default:0" msgpack:"amount_collected"`
	// CreatedAt is the timestamp when the campaign was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz" msgpack:"created_at"`
	// UpdatedAt is the timestamp of the last donation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz" msgpack:"updated_at"`
}

// TableName specifies the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}
