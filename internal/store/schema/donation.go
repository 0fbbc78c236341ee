package schema

import "time"

// Donation represents the campaign_donations table - cumulative amount donated by one donor to one campaign
type Donation struct {
	// CampaignID references the campaign
	CampaignID uint64 `gorm:"column:campaign_id;primaryKey;autoIncrement:false" msgpack:"campaign_id"`
	// Donor is the donating account
	Donor string `gorm:"column:donor;primaryKey;type:text" msgpack:"donor"`
	// Amount is the donor's cumulative donation as a decimal string
	Amount string `gorm:"column:amount;not null;type:numeric(39,0)" msgpack:"amount"`
	// CreatedAt is the timestamp of the donor's first donation
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz" msgpack:"created_at"`
	// UpdatedAt is the timestamp of the donor's latest donation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz" msgpack:"updated_at"`
}

// TableName specifies the table name for the Donation model
func (Donation) TableName() string {
	return "campaign_donations"
}
